// Package file loads authentication flows from YAML or JSON documents on disk.
package file
