package wordpress

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/Nexora-Open-Source/feed-republisher/utils"
)

// maxImageSize bounds a downloaded image; larger images are not uploaded.
var maxImageSize int64 = 20 << 20

const (
	imageTimeout   = 15 * time.Second
	fallbackName   = "image.jpg"
	fallbackType   = "image/jpeg"
	imageUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// UploadMedia downloads imageURL and uploads it to the media library of
// target, returning the attachment id.
func (c *Client) UploadMedia(ctx context.Context, target types.Target, imageURL string) (int, error) {
	data, contentType, err := c.downloadImage(ctx, imageURL)
	if err != nil {
		return 0, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": utils.FilenameFromURL(imageURL, fallbackName),
	}))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(data); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.APIBase()+apiPrefix+"/media", &body)
	if err != nil {
		return 0, err
	}
	req.SetBasicAuth(target.Username, target.Password)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var media struct {
		ID int `json:"id"`
	}
	if err := c.do(req, target, "/media", &media); err != nil {
		return 0, err
	}
	if media.ID == 0 {
		return 0, fmt.Errorf("%s /media: response without id", target.APIBase())
	}
	return media.ID, nil
}

func (c *Client) downloadImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, imageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", imageUserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("download %s: unexpected status %d", imageURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", imageURL, err)
	}
	if int64(len(data)) > maxImageSize {
		return nil, "", fmt.Errorf("download %s: image larger than %d bytes", imageURL, maxImageSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = fallbackType
	}
	return data, contentType, nil
}
