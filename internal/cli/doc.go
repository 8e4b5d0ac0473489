// Package cli implements the butler command line.
//
// Commands are built by factory functions that share an env holding the
// persistent --project flag, so the project is resolved only after flags are
// parsed:
//
//	butler init NAME [--path DIR]
//	butler list [--json]
//	butler new NAME [--kind basic|step] [--format yaml|hcl|go]
//	butler run [NAME] [--set key=value ...] [--no-dashboard] [--metrics-addr ADDR]
//
// Data goes to stdout; warnings and progress lines go to stderr.
package cli
