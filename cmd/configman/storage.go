package main

import (
	"fmt"

	"github.com/lixenwraith/configman"
)

// storage is a connection description built from resolved options.
type storage struct {
	Kind string
	DSN  string
}

func (s storage) String() string { return s.Kind + " " + s.DSN }

type postgres struct{}

func (postgres) RequiredConfig() *configman.Namespace {
	ns := configman.NewNamespace()
	ns.Option("host", "localhost", configman.WithDoc("the hostname of the database server"))
	ns.Option("port", 5432, configman.WithDoc("the port of the database server"), configman.WithValidation("min=1,max=65535"))
	ns.Option("dbname", "breakpad", configman.WithDoc("the name of the database"))
	ns.Option("user", "breakpad_rw", configman.WithDoc("the user of the database"))
	ns.Option("password", "", configman.WithDoc("the password of the database user"), configman.WithExcludeFromDump())
	return ns
}

func (postgres) New(local *configman.Config) (any, error) {
	host, _ := local.String("host")
	port, _ := local.Int("port")
	dbname, _ := local.String("dbname")
	user, _ := local.String("user")
	return storage{Kind: "postgres", DSN: fmt.Sprintf("postgres://%s@%s:%d/%s", user, host, port, dbname)}, nil
}

type mysql struct{}

func (mysql) RequiredConfig() *configman.Namespace {
	ns := configman.NewNamespace()
	ns.Option("host", "localhost", configman.WithDoc("the hostname of the database server"))
	ns.Option("port", 3306, configman.WithDoc("the port of the database server"), configman.WithValidation("min=1,max=65535"))
	ns.Option("dbname", "breakpad", configman.WithDoc("the name of the database"))
	return ns
}

func (mysql) New(local *configman.Config) (any, error) {
	host, _ := local.String("host")
	port, _ := local.Int("port")
	dbname, _ := local.String("dbname")
	return storage{Kind: "mysql", DSN: fmt.Sprintf("tcp(%s:%d)/%s", host, port, dbname)}, nil
}

type hbase struct{}

func (hbase) RequiredConfig() *configman.Namespace {
	ns := configman.NewNamespace()
	ns.Option("thrift_host", "localhost", configman.WithDoc("the hostname of the HBase Thrift server"))
	ns.Option("thrift_port", 9090, configman.WithDoc("the port of the HBase Thrift server"))
	ns.Option("timeout", "5s", configman.WithDoc("the request timeout"), configman.WithFromString(func(s string) (any, error) {
		return configman.ParseDuration(s)
	}))
	return ns
}

func (hbase) New(local *configman.Config) (any, error) {
	host, _ := local.String("thrift_host")
	port, _ := local.Int("thrift_port")
	timeout, _ := local.Duration("timeout")
	return storage{Kind: "hbase", DSN: fmt.Sprintf("thrift://%s:%d?timeout=%s", host, port, timeout)}, nil
}

func registerStorage(reg *configman.Registry) {
	reg.RegisterClass("postgres", postgres{})
	reg.RegisterClass("mysql", mysql{})
	reg.RegisterClass("hbase", hbase{})
}
