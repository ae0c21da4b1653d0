package metrics

import "sync/atomic"

// Diagnostics holds the last observed page-level signals.
// Writes from concurrent pages are last-write-wins; readers never block writers.
type Diagnostics struct {
	lang     atomic.Value // string
	district atomic.Value // string
}

// NewDiagnostics creates a register and, when reg is non-nil, exposes it as the lastLang and lastDistrict gauges
func NewDiagnostics(reg *Registry) *Diagnostics {
	d := &Diagnostics{}
	d.lang.Store("")
	d.district.Store("")
	if reg != nil {
		reg.RegisterLabel("lastLang", d.Lang)
		reg.RegisterLabel("lastDistrict", d.District)
	}
	return d
}

func (d *Diagnostics) SetLang(lang string)         { d.lang.Store(lang) }
func (d *Diagnostics) SetDistrict(district string) { d.district.Store(district) }
func (d *Diagnostics) Lang() string                { return d.lang.Load().(string) }
func (d *Diagnostics) District() string            { return d.district.Load().(string) }
