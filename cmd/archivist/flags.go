package main

import "time"

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	// API connection
	APIUrl     string
	APITimeout time.Duration
	Username   string
	Password   string
	CACert     string
	Insecure   bool
	// SessionDir overrides where login tokens are kept (tests).
	SessionDir string
}

type ServeFlags struct {
	ConfigPath string
}

type InitSchemaFlags struct {
	DSN string
}

type AddFlags struct {
	Name string
	Host string
	// DSN, when set, writes straight to the store instead of the API.
	DSN string
}

type IDFlags struct {
	ID  int64
	DSN string
}

type ListFlags struct {
	Limit int
	DSN   string
}
