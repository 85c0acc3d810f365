package batch

import (
	"errors"
	"testing"

	"github.com/bitrise-io/go-resumable-upload/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firstBundle = `{"responses":[
	{"id":"1","status":200,"headers":{"Content-Type":"application/json"},"body":{"id":"item-1","name":"a.txt"}},
	{"id":"2","status":404,"headers":{"Content-Type":"application/json"},"body":{"error":{"code":"itemNotFound"}}}
]}`

const secondBundle = `{"responses":[
	{"id":"3","status":201,"headers":{"Content-Type":"application/json; charset=utf-8"},"body":{"id":"item-3","name":"c.txt"}}
]}`

type driveItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCollection(t *testing.T) *Collection {
	first, err := ParseContent([]byte(firstBundle))
	require.NoError(t, err)
	second, err := ParseContent([]byte(secondBundle))
	require.NoError(t, err)

	c := NewCollection(nil)
	c.Add([]string{"1", "2"}, first)
	c.Add([]string{"3"}, second)
	return c
}

func TestCollection_Response(t *testing.T) {
	c := newTestCollection(t)

	tests := []struct {
		name       string
		id         string
		wantStatus int
		wantErr    error
	}{
		{name: "first bundle", id: "1", wantStatus: 200},
		{name: "error response", id: "2", wantStatus: 404},
		{name: "second bundle", id: "3", wantStatus: 201},
		{name: "unknown id", id: "4", wantErr: ErrResponseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := c.Response(tt.id)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, r.ID)
			assert.Equal(t, tt.wantStatus, r.Status)
		})
	}
}

func TestCollection_Decode(t *testing.T) {
	c := newTestCollection(t)

	var item driveItem
	require.NoError(t, c.Decode("3", &item))
	assert.Equal(t, driveItem{ID: "item-3", Name: "c.txt"}, item)

	assert.True(t, errors.Is(c.Decode("9", &item), ErrResponseNotFound))
}

func TestCollection_StatusCodes(t *testing.T) {
	c := newTestCollection(t)
	assert.Equal(t, map[string]int{"1": 200, "2": 404, "3": 201}, c.StatusCodes())
}

func TestCollection_KeysScopeLookup(t *testing.T) {
	content, err := ParseContent([]byte(firstBundle))
	require.NoError(t, err)

	c := NewCollection(nil)
	c.Add([]string{"1"}, content)

	_, err = c.Response("2")
	assert.True(t, errors.Is(err, ErrResponseNotFound), "ids outside of the keys must not be found")
}

func TestNewCollection_SetsFeatureFlag(t *testing.T) {
	features := transport.NewFeatureUsage()
	NewCollection(features)
	assert.True(t, features.Has(transport.BatchRequestFlag))
}

func TestParseContent_Invalid(t *testing.T) {
	_, err := ParseContent([]byte(`{"responses":`))
	assert.Error(t, err)
}
