//go:build !cgo

package remotedb

import (
	"database/sql"
	"errors"
	"io"
)

func openLibSQL(primaryURL, authToken, replicaPath string) (*sql.DB, io.Closer, error) {
	return nil, nil, errors.New("libsql support requires a cgo build")
}
