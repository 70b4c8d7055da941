package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/meterscan/internal/observability/context"
	readingdomain "github.com/smallbiznis/meterscan/internal/reading/domain"
)

type ingestReadingRequest struct {
	// Image is raw base64 or a data URL.
	Image        string `json:"image"`
	MeterKind    string `json:"meterKind"`
	CustomerCode string `json:"customerCode"`
}

type confirmReadingRequest struct {
	ReadingID      string   `json:"readingId"`
	ConfirmedValue *float64 `json:"confirmedValue"`
}

type confirmReadingResponse struct {
	Success bool                    `json:"success"`
	Reading *readingdomain.Response `json:"reading"`
}

type listReadingsResponse struct {
	CustomerCode string                   `json:"customerCode"`
	Readings     []readingdomain.Response `json:"readings"`
}

func (s *Server) IngestReading(c *gin.Context) {
	req, err := s.bindIngestRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	customerCode := strings.TrimSpace(req.CustomerCode)
	c.Set("customer_code", customerCode)
	ctx := obscontext.WithCustomerCode(c.Request.Context(), customerCode)

	resp, err := s.readingSvc.Ingest(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("reading_id", resp.ID)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ConfirmReading(c *gin.Context) {
	var req confirmReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	readingID := strings.TrimSpace(req.ReadingID)
	c.Set("reading_id", readingID)

	resp, err := s.readingSvc.Confirm(c.Request.Context(), readingdomain.ConfirmRequest{
		ReadingID:      readingID,
		ConfirmedValue: req.ConfirmedValue,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, confirmReadingResponse{Success: true, Reading: resp})
}

func (s *Server) ListReadings(c *gin.Context) {
	var query struct {
		CustomerCode string `form:"customerCode"`
		MeterKind    string `form:"meterKind"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerCode := strings.TrimSpace(query.CustomerCode)
	c.Set("customer_code", customerCode)

	resp, err := s.readingSvc.ListForCustomer(c.Request.Context(), readingdomain.ListRequest{
		CustomerCode: customerCode,
		MeterKind:    strings.TrimSpace(query.MeterKind),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, listReadingsResponse{CustomerCode: customerCode, Readings: resp})
}

func (s *Server) GetReadingByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("reading_id", id)

	resp, err := s.readingSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) bindIngestRequest(c *gin.Context) (readingdomain.IngestRequest, error) {
	if isMultipart(c) {
		return bindMultipartIngest(c)
	}

	var body ingestReadingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		if isBodyTooLarge(err) {
			return readingdomain.IngestRequest{}, ErrPayloadTooLarge
		}
		return readingdomain.IngestRequest{}, invalidRequestError()
	}

	image, mimeType, err := decodeImage(body.Image)
	if err != nil {
		return readingdomain.IngestRequest{}, err
	}

	return readingdomain.IngestRequest{
		Image:        image,
		MimeType:     mimeType,
		MeterKind:    body.MeterKind,
		CustomerCode: body.CustomerCode,
	}, nil
}

func bindMultipartIngest(c *gin.Context) (readingdomain.IngestRequest, error) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		switch {
		case isBodyTooLarge(err):
			return readingdomain.IngestRequest{}, ErrPayloadTooLarge
		case errors.Is(err, http.ErrMissingFile):
			return readingdomain.IngestRequest{}, fmt.Errorf("%w: image file is missing", readingdomain.ErrInvalidImage)
		default:
			return readingdomain.IngestRequest{}, invalidRequestError()
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		return readingdomain.IngestRequest{}, invalidRequestError()
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		if isBodyTooLarge(err) {
			return readingdomain.IngestRequest{}, ErrPayloadTooLarge
		}
		return readingdomain.IngestRequest{}, invalidRequestError()
	}

	return readingdomain.IngestRequest{
		Image:        image,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		MeterKind:    c.PostForm("meterKind"),
		CustomerCode: c.PostForm("customerCode"),
	}, nil
}

// decodeImage accepts plain base64 or a data:<mime>;base64,<payload> URL.
func decodeImage(value string) ([]byte, string, error) {
	payload := strings.TrimSpace(value)
	if payload == "" {
		return nil, "", fmt.Errorf("%w: image is empty", readingdomain.ErrInvalidImage)
	}

	var mimeType string
	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: malformed data url", readingdomain.ErrInvalidImage)
		}
		mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = data
	}

	image, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		image, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: image is not valid base64", readingdomain.ErrInvalidImage)
	}
	return image, mimeType, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
