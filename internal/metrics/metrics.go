// Package metrics exposes prometheus counters for the isolation core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScopeResolutions counts resolution middleware outcomes
	// (resolved, denied).
	ScopeResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenancy_scope_resolutions_total",
		Help: "Scope resolution outcomes per request",
	}, []string{"outcome"})

	// AccessDenials counts isolation denials by kind
	// (branch, company, relationship, entity, write).
	AccessDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenancy_access_denials_total",
		Help: "Access denials by kind",
	}, []string{"kind"})

	// FilterBypasses counts privileged uses of the unfiltered query handle.
	FilterBypasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenancy_filter_bypasses_total",
		Help: "Privileged bypasses of the tenant query filter",
	})
)
