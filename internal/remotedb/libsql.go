//go:build cgo

package remotedb

import (
	"database/sql"
	"io"
	"path/filepath"

	"github.com/tursodatabase/go-libsql"
)

// openLibSQL opens an embedded replica of the Turso database at primaryURL.
// Reads are served from the replica; writes go to the primary.
func openLibSQL(primaryURL, authToken, replicaPath string) (*sql.DB, io.Closer, error) {
	abs, err := filepath.Abs(replicaPath)
	if err != nil {
		return nil, nil, err
	}

	var opts []libsql.Option
	if authToken != "" {
		opts = append(opts, libsql.WithAuthToken(authToken))
	}
	connector, err := libsql.NewEmbeddedReplicaConnector(abs, primaryURL, opts...)
	if err != nil {
		return nil, nil, err
	}
	if _, err := connector.Sync(); err != nil {
		connector.Close()
		return nil, nil, err
	}
	return sql.OpenDB(connector), connector, nil
}
