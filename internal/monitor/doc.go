// Package monitor renders diagnostic plots of reconstructed clusters.
package monitor
