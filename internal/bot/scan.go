package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"carma/internal/qr"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const maxPhotoBytes = 10 << 20

var errNoQRCode = errors.New("no qr code in photo")

// handleScan reads the pickup QR from the largest size of a photo and
// confirms the booking it names.
func (b *Bot) handleScan(ctx context.Context, msg *tgbotapi.Message) {
	photo := msg.Photo[len(msg.Photo)-1]

	data, err := b.downloadFile(ctx, photo.FileID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("file_id", photo.FileID).Msg("Photo download failed")
		b.sendMessage(msg.Chat.ID, b.getErrorMessage(err))
		return
	}

	id, err := qr.ScanBookingID(data)
	if err != nil {
		if !errors.Is(err, qr.ErrNoBookingID) {
			err = fmt.Errorf("%w: %v", errNoQRCode, err)
		}
		b.sendMessage(msg.Chat.ID, b.getErrorMessage(err))
		return
	}

	b.handleConfirm(ctx, msg.Chat.ID, id, "scan")
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.tgService.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
}
