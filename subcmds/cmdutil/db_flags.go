// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"context"
	"flag"
	"path"

	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvhttp"
)

// DBFlags selects the database of a running session.
type DBFlags struct {
	ClientFlags

	dbURLPath string
}

func (f *DBFlags) SetFlags(fset *flag.FlagSet) {
	f.ClientFlags.SetFlags(fset)
	fset.StringVar(&f.dbURLPath, "db-url-path", "/db", "path to db api handler")
}

func IsGoodKey(k string) bool {
	return path.IsAbs(k) && k == path.Clean(k)
}

func (f *DBFlags) GetDatabase(ctx context.Context) (db kv.Database, closer func(), status error) {
	addrURL := f.ClientFlags.AddressURL()
	addrURL.Path = path.Join(addrURL.Path, f.dbURLPath)
	return kvhttp.New(addrURL, f.ClientFlags.HttpClient()), func() {}, nil
}
