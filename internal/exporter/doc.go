// Package exporter renders reports into downloadable files. Every format
// starts from the same Document so the outputs stay consistent; PDF and PNG
// are printed from the HTML rendering by a headless Chrome.
package exporter
