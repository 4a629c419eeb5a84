// Package charts loads the chart update plan produced by the version resolver
// and applies it to a Helm dependency manifest.
package charts
