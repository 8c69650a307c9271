package claim

// Kind is the terminal result of claiming a single device.
type Kind string

const (
	KindClaimed         Kind = "claimed"
	KindUpdatedExisting Kind = "updated_existing"
	KindFailed          Kind = "failed"
)

// Outcome records what happened to one device console address during a run.
type Outcome struct {
	Address string `json:"address"`
	Kind    Kind   `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	// Moid is the platform identifier of the claim object when it is known.
	Moid string `json:"moid,omitempty"`
	Err  error  `json:"-"`
}

// Claimed builds a successful create outcome.
func Claimed(address, moid string) Outcome {
	return Outcome{Address: address, Kind: KindClaimed, Moid: moid}
}

// UpdatedExisting builds an outcome for a claim that already existed and was updated.
func UpdatedExisting(address, moid string) Outcome {
	return Outcome{Address: address, Kind: KindUpdatedExisting, Moid: moid}
}

// Failed builds a failed outcome carrying the underlying cause.
func Failed(address string, err error) Outcome {
	o := Outcome{Address: address, Kind: KindFailed, Err: err}
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}

// Succeeded reports whether the device ended up claimed.
func (o Outcome) Succeeded() bool {
	return o.Kind == KindClaimed || o.Kind == KindUpdatedExisting
}

// Summary counts outcomes by kind.
type Summary struct {
	Total   int `json:"total"`
	Claimed int `json:"claimed"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Summarize tallies a slice of outcomes.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Kind {
		case KindClaimed:
			s.Claimed++
		case KindUpdatedExisting:
			s.Updated++
		default:
			s.Failed++
		}
	}
	return s
}
