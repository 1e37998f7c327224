package media

import (
	"encoding/base64"
	"fmt"
	"mime"
	"sort"
	"strings"

	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/gabriel-vasile/mimetype"
)

// MaxPhotoBytes caps the decoded size of a single component photo.
const MaxPhotoBytes = 4 << 20

var allowedPhotoTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/gif":  {},
}

// NormalizePhoto validates an optional data URL photo. Blank input returns
// nil. The returned URL carries the sniffed content type, not the one the
// client declared.
func NormalizePhoto(field string, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	raw := strings.TrimSpace(*value)
	if raw == "" {
		return nil, nil
	}

	declared, payload, err := splitDataURL(raw)
	if err != nil {
		return nil, photoError(field, err.Error())
	}
	if _, ok := allowedPhotoTypes[declared]; !ok {
		return nil, photoError(field, fmt.Sprintf("must be %s", allowedDescription()))
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > MaxPhotoBytes+3 {
		return nil, photoError(field, fmt.Sprintf("must be at most %d bytes", MaxPhotoBytes))
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, photoError(field, "is not valid base64")
	}
	if len(data) == 0 {
		return nil, photoError(field, "is empty")
	}
	if len(data) > MaxPhotoBytes {
		return nil, photoError(field, fmt.Sprintf("must be at most %d bytes", MaxPhotoBytes))
	}

	detected := mimetype.Detect(data)
	sniffed, _, _ := mime.ParseMediaType(detected.String())
	if _, ok := allowedPhotoTypes[sniffed]; !ok {
		return nil, photoError(field, fmt.Sprintf("content is %s, must be %s", sniffed, allowedDescription()))
	}

	normalized := "data:" + sniffed + ";base64," + base64.StdEncoding.EncodeToString(data)
	return &normalized, nil
}

func splitDataURL(raw string) (string, string, error) {
	if !strings.HasPrefix(raw, "data:") {
		return "", "", fmt.Errorf("must be a data URL")
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return "", "", fmt.Errorf("data URL is missing a payload")
	}
	params := strings.Split(header, ";")
	if len(params) < 2 || params[len(params)-1] != "base64" {
		return "", "", fmt.Errorf("data URL must be base64 encoded")
	}
	mediaType, _, err := mime.ParseMediaType(strings.Join(params[:len(params)-1], ";"))
	if err != nil {
		return "", "", fmt.Errorf("data URL mime type invalid")
	}
	return strings.ToLower(mediaType), payload, nil
}

func allowedDescription() string {
	list := make([]string, 0, len(allowedPhotoTypes))
	for v := range allowedPhotoTypes {
		list = append(list, v)
	}
	sort.Strings(list)
	return strings.Join(list, ", ")
}

func photoError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid photo").WithDetails(map[string]string{field: msg})
}
