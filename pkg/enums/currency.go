package enums

// Currency is the ISO currency code stored on monetary rows.
type Currency string

const (
	CurrencyUSD Currency = "USD"
)

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}
