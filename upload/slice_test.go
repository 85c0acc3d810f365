package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitrise-io/go-resumable-upload/codec"
	"github.com/bitrise-io/go-resumable-upload/upload/ranges"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceUploader_Upload(t *testing.T) {
	content := []byte("abcdefghij")

	var gotRange string
	var gotBody []byte
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotRange = r.Header.Get("Content-Range")

		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"expirationDateTime":"2030-01-01T00:00:00Z","nextExpectedRanges":["7-"]}`))
	}))
	defer svr.Close()

	uploader := NewSliceUploader[driveItem](newTestClient(), codec.NewRegistry(), log.NewLogger())

	result, err := uploader.Upload(context.Background(), svr.URL, ranges.Slice{Begin: 3, End: 6, Total: 10}, bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "bytes 3-6/10", gotRange)
	assert.Equal(t, []byte("defg"), gotBody)
	require.NotNil(t, result.Session)
	assert.Equal(t, []string{"7-"}, result.Session.NextExpectedRanges)
	assert.False(t, result.Succeeded())
}

func TestSliceUploader_Upload_ShortContent(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	defer svr.Close()

	uploader := NewSliceUploader[driveItem](newTestClient(), codec.NewRegistry(), log.NewLogger())

	_, err := uploader.Upload(context.Background(), svr.URL, ranges.Slice{Begin: 5, End: 14, Total: 15}, bytes.NewReader([]byte("0123456789")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), err)
}

func TestReadWindow(t *testing.T) {
	content := bytes.NewReader([]byte("0123456789"))

	data, err := readWindow(content, 8, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), data)

	data, err = readWindow(content, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("0"), data)

	_, err = readWindow(content, 9, 2)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
