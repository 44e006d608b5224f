package runtime

const (
	// AccountStorageOverhead is the number of bytes charged for every account
	// on top of its data.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 3480
	DefaultExemptionThreshold  = 2
)

// Rent computes the balance an account must hold to persist.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64
}

// MinimumBalance returns the rent exempt minimum for an account holding
// dataLen bytes.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	return (AccountStorageOverhead + dataLen) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// IsExempt reports whether lamports cover the rent exempt minimum.
func (r Rent) IsExempt(lamports, dataLen uint64) bool {
	return lamports >= r.MinimumBalance(dataLen)
}
