package errs_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  *errs.Error
		want int
	}{
		{"unauthorized", errs.Unauthorized(errs.VariantNoSuchToken, "x"), http.StatusUnauthorized},
		{"conflict", errs.Conflict(errs.VariantPrimaryKey, "x"), http.StatusConflict},
		{"redcap", errs.Redcap(errs.VariantFieldNotFound, "x"), http.StatusInternalServerError},
		{"io", errs.IO("op", errors.New("boom")), http.StatusInternalServerError},
		{"parse", errs.Parse("op", errors.New("boom")), http.StatusInternalServerError},
		{"serialize", errs.Serialize("op", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.err.Status())
		})
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := errs.IO("table.write", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesKindAndVariant(t *testing.T) {
	err := errs.Unauthorized(errs.VariantTokenExpired, "expired")
	assert.True(t, errs.Is(err, errs.KindUnauthorized, errs.VariantTokenExpired))
	assert.False(t, errs.Is(err, errs.KindUnauthorized, errs.VariantNoSuchToken))
	assert.False(t, errs.Is(err, errs.KindConflict, ""))
	assert.True(t, errs.Is(err, errs.KindUnauthorized, ""))
}

func TestAsExtractsConcreteType(t *testing.T) {
	var target *errs.Error
	err := errs.FieldNotFound("pid")
	require.True(t, errs.As(err, &target))
	assert.Equal(t, errs.VariantFieldNotFound, target.Variant)
}

func TestUnexpectedJSONValueMessage(t *testing.T) {
	err := errs.UnexpectedJSONValue("titre", "number", "abc")
	assert.Contains(t, err.Error(), "titre")
	assert.Equal(t, errs.KindRedcapExtract, err.Kind)
}
