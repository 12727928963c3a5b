package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressSelector(t *testing.T) {
	sel, err := NewAddressSelector("127.0.0.1/32")
	require.NoError(t, err)

	t.Run("trusted source uses last forwarded hop", func(t *testing.T) {
		e := Event{
			SourceAddress: "127.0.0.1",
			XForwardedFor: []string{"203.0.113.9", "216.160.83.56"},
		}
		assert.Equal(t, "216.160.83.56", sel.CoordinatingAddress(e))
	})

	t.Run("untrusted source keeps direct address", func(t *testing.T) {
		e := Event{
			SourceAddress: "198.51.100.7",
			XForwardedFor: []string{"216.160.83.56"},
		}
		assert.Equal(t, "198.51.100.7", sel.CoordinatingAddress(e))
	})

	t.Run("trusted source without forwarding chain", func(t *testing.T) {
		e := Event{SourceAddress: "127.0.0.1"}
		assert.Equal(t, "127.0.0.1", sel.CoordinatingAddress(e))
	})
}

func TestAddressSelectorDisabled(t *testing.T) {
	sel, err := NewAddressSelector("")
	require.NoError(t, err)

	e := Event{SourceAddress: "127.0.0.1", XForwardedFor: []string{"216.160.83.56"}}
	assert.Equal(t, "127.0.0.1", sel.CoordinatingAddress(e))
}

func TestAddressSelectorInvalidCIDR(t *testing.T) {
	_, err := NewAddressSelector("not-a-cidr")
	assert.Error(t, err)
}
