package vectorize

// Options are the tracing controls. Every field is optional: a zero value
// means "use the tracer's default", so any subset of controls may be set.
type Options struct {
	Colors         int     `toml:"colors" json:"colors,omitempty"`
	LineThreshold  float64 `toml:"line_threshold" json:"line_threshold,omitempty"`
	CurveThreshold float64 `toml:"curve_threshold" json:"curve_threshold,omitempty"`
	PathOmit       int     `toml:"path_omit" json:"path_omit,omitempty"`
	Blur           float64 `toml:"blur" json:"blur,omitempty"`
	Scale          float64 `toml:"scale" json:"scale,omitempty"`
	OptimizePaths  bool    `toml:"optimize_paths" json:"optimize_paths,omitempty"`
	Outline        bool    `toml:"outline" json:"outline,omitempty"`
	HighQuality    bool    `toml:"high_quality" json:"high_quality,omitempty"`
}

// ColorsOr returns Colors, or def when unset.
func (o Options) ColorsOr(def int) int {
	if o.Colors > 0 {
		return o.Colors
	}
	return def
}

// LineThresholdOr returns LineThreshold, or def when unset.
func (o Options) LineThresholdOr(def float64) float64 {
	if o.LineThreshold > 0 {
		return o.LineThreshold
	}
	return def
}

// CurveThresholdOr returns CurveThreshold, or def when unset.
func (o Options) CurveThresholdOr(def float64) float64 {
	if o.CurveThreshold > 0 {
		return o.CurveThreshold
	}
	return def
}

// PathOmitOr returns PathOmit, or def when unset.
func (o Options) PathOmitOr(def int) int {
	if o.PathOmit > 0 {
		return o.PathOmit
	}
	return def
}

// ScaleOr returns Scale, or def when unset.
func (o Options) ScaleOr(def float64) float64 {
	if o.Scale > 0 {
		return o.Scale
	}
	return def
}

// Merge returns o with every unset field taken from defaults.
func (o Options) Merge(defaults Options) Options {
	if o.Colors == 0 {
		o.Colors = defaults.Colors
	}
	if o.LineThreshold == 0 {
		o.LineThreshold = defaults.LineThreshold
	}
	if o.CurveThreshold == 0 {
		o.CurveThreshold = defaults.CurveThreshold
	}
	if o.PathOmit == 0 {
		o.PathOmit = defaults.PathOmit
	}
	if o.Blur == 0 {
		o.Blur = defaults.Blur
	}
	if o.Scale == 0 {
		o.Scale = defaults.Scale
	}
	o.OptimizePaths = o.OptimizePaths || defaults.OptimizePaths
	o.Outline = o.Outline || defaults.Outline
	o.HighQuality = o.HighQuality || defaults.HighQuality
	return o
}
