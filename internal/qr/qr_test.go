package qr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickupURL(t *testing.T) {
	assert.Equal(t, "https://carma.example/confirm-rental?bookingId=BK0123", PickupURL("https://carma.example/", "BK0123"))
	assert.Equal(t, "http://localhost:8080/confirm-rental?bookingId=BK+1", PickupURL("http://localhost:8080", "BK 1"))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := PickupPNG("https://carma.example", "BK0123", 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())

	text, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "https://carma.example/confirm-rental?bookingId=BK0123", text)

	id, err := ScanBookingID(data)
	require.NoError(t, err)
	assert.Equal(t, "BK0123", id)
}

func TestDecode_NoCode(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range blank.Pix {
		blank.Pix[i] = uint8(color.White.Y >> 8)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, blank))

	_, err := Decode(&buf)
	assert.Error(t, err)

	_, err = Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestBookingID(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "pickup url", payload: "https://carma.example/confirm-rental?bookingId=BK0123", want: "BK0123"},
		{name: "bare id", payload: " BKX7QZ ", want: "BKX7QZ"},
		{name: "url without id", payload: "https://carma.example/confirm-rental", wantErr: true},
		{name: "empty", payload: "", wantErr: true},
		{name: "other text", payload: "hello", wantErr: true},
		{name: "json ticket", payload: `{"bookingId":"BK0123","carName":"Tesla Model 3"}`, want: "BK0123"},
		{name: "json without id", payload: `{"carName":"Tesla Model 3"}`, wantErr: true},
		{name: "broken json", payload: `{"bookingId":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BookingID(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoBookingID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanBookingID_JSONTicket(t *testing.T) {
	png, err := EncodePNG(`{"bookingId":"BK0042","carName":"BMW X5"}`, 256)
	require.NoError(t, err)

	id, err := ScanBookingID(png)
	require.NoError(t, err)
	assert.Equal(t, "BK0042", id)
}
