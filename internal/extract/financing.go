package extract

// FinancingType is how a training was paid for.
type FinancingType string

const (
	FinancingCPF     FinancingType = "CPF"
	FinancingOPCO    FinancingType = "OPCO"
	FinancingDirect  FinancingType = "DIRECT"
	FinancingUnknown FinancingType = "UNKNOWN"
)

// Known reports whether the type was identified.
func (f FinancingType) Known() bool {
	return f == FinancingCPF || f == FinancingOPCO || f == FinancingDirect
}

// ParseFinancing maps a stored value back to a FinancingType.
func ParseFinancing(s string) FinancingType {
	switch FinancingType(s) {
	case FinancingCPF, FinancingOPCO, FinancingDirect:
		return FinancingType(s)
	}
	return FinancingUnknown
}

// Financing classifies key. The sets are tried in order CPF, OPCO, DIRECT;
// a payment verb next to a self or company reference also means DIRECT.
func (e *Extractor) Financing(key string) FinancingType {
	switch {
	case key == "":
		return FinancingUnknown
	case e.lx.CPF.Any(key):
		return FinancingCPF
	case e.lx.OPCO.Any(key):
		return FinancingOPCO
	case e.lx.Direct.Any(key):
		return FinancingDirect
	case e.lx.PaymentVerbs.Any(key) && e.lx.SelfReferences.Any(key):
		return FinancingDirect
	}
	return FinancingUnknown
}
