package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/storage"
)

type sample struct {
	Name      string           `json:"name" validate:"required,max=5"`
	Note      string           `json:"note,omitempty" validate:"max=3"`
	Category  storage.Category `json:"category" validate:"enum"`
	Price     int64            `json:"price" validate:"gt=0"`
	Rating    int              `json:"rating" validate:"min=1,max=5"`
	Reference string           `json:"reference" validate:"omitempty,uuid"`
}

func valid() sample {
	return sample{Name: "lamp", Category: storage.CategoryHome, Price: 1, Rating: 3}
}

func TestStructAcceptsValidInput(t *testing.T) {
	require.NoError(t, Struct(valid()))
}

func TestStructMapsRulesToLedgerErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(s *sample)
		want   error
		field  string
	}{
		{"missing name", func(s *sample) { s.Name = "" }, apperr.ErrFieldRequired, "name"},
		{"long name", func(s *sample) { s.Name = "lamps!" }, apperr.ErrFieldTooLong, "name"},
		{"long note", func(s *sample) { s.Note = "abcd" }, apperr.ErrFieldTooLong, "note"},
		{"unknown category", func(s *sample) { s.Category = "furniture" }, apperr.ErrInvalidCategory, ""},
		{"empty category", func(s *sample) { s.Category = "" }, apperr.ErrInvalidCategory, ""},
		{"zero price", func(s *sample) { s.Price = 0 }, apperr.ErrInvalidPrice, ""},
		{"rating too low", func(s *sample) { s.Rating = 0 }, apperr.ErrInvalidRating, ""},
		{"rating too high", func(s *sample) { s.Rating = 6 }, apperr.ErrInvalidRating, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(&s)
			err := Struct(s)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			if tc.field != "" {
				var appErr *apperr.Error
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tc.field, appErr.Field)
			}
		})
	}
}

func TestStructCountsCharacters(t *testing.T) {
	s := valid()
	s.Name = strings.Repeat("é", 5)
	assert.NoError(t, Struct(s))

	s.Name = strings.Repeat("é", 6)
	assert.ErrorIs(t, Struct(s), apperr.ErrFieldTooLong)
}

func TestStructReportsOtherRulesAsInvalidField(t *testing.T) {
	s := valid()
	s.Reference = "not-a-uuid"
	err := Struct(s)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeInvalidField, appErr.Code)
	assert.Equal(t, "reference", appErr.Field)
}

func TestStructRejectsNonStruct(t *testing.T) {
	err := Struct("plain string")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
