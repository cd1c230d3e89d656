// Package model defines the typed records that flow through the sales pipeline:
// catalog products, raw transactions, per-(product, day) aggregates, and the
// provenance flag that marks a table generation as real or synthetic.
package model
