// Package registry loads the printers file and keeps the connection
// manager's active device set in sync with it.
//
// The printers file is YAML, separate from the main application config so
// printers can be added and removed without touching service settings:
//
//	printers:
//	  - id: voron-01
//	    name: Voron 2.4
//	    url: http://10.0.0.5:7125
//	    api_key: secret
//	    enabled: true
//
// Sync diffs the file against the currently activated set: new or
// re-enabled printers are activated, removed or disabled ones are
// deactivated, and a changed connection target is applied by deactivating
// the old session and activating the new one. The main program calls Sync
// at startup and again on SIGHUP.
package registry
