package config

// Flags carries the command line overrides. Empty values leave the
// file/env configuration untouched.
type Flags struct {
	Config  string
	Host    string
	Binary  string
	Topic   string
	Manager string
}
