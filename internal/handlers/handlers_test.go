package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dbskills/enrollment/internal/config"
	"github.com/dbskills/enrollment/internal/middleware"
	"github.com/dbskills/enrollment/internal/ocr"
	"github.com/dbskills/enrollment/internal/repository"
	"github.com/dbskills/enrollment/internal/service"
)

var codeInBody = regexp.MustCompile(`code is: (\d{4})\.`)

type inbox struct {
	mu   sync.Mutex
	msgs map[string]string
}

func (i *inbox) Send(ctx context.Context, to, body string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs[to] = body
	return nil
}

func (i *inbox) code(t *testing.T, to string) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	m := codeInBody.FindStringSubmatch(i.msgs[to])
	require.Len(t, m, 2, "no code sent to %s", to)
	return m[1]
}

type stubRecognizer struct {
	text        string
	err         error
	contentType string
}

func (s *stubRecognizer) Recognize(ctx context.Context, image []byte, contentType string) (string, error) {
	s.contentType = contentType
	return s.text, s.err
}

var _ ocr.Recognizer = (*stubRecognizer)(nil)

type testServer struct {
	handler    http.Handler
	inbox      *inbox
	recognizer *stubRecognizer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	jwtService, err := service.NewJWTService(&config.JWTConfig{
		SecretKey:          "0123456789abcdef0123456789abcdef",
		VerificationExpiry: 30 * time.Minute,
	}, logger)
	require.NoError(t, err)

	box := &inbox{msgs: make(map[string]string)}
	otpService := service.NewOTPService(repository.NewMemoryOTPRepository(), box, &config.OTPConfig{
		Expiry:     5 * time.Minute,
		BcryptCost: bcrypt.MinCost,
	}, logger)
	candidateService := service.NewCandidateService(repository.NewMemoryCandidateRepository(), logger)
	recognizer := &stubRecognizer{}

	router := NewRouter(
		NewOTPHandlers(otpService, jwtService, logger),
		NewCandidateHandlers(candidateService, recognizer, 1<<20, logger),
		middleware.NewAuthMiddleware(jwtService, logger),
		[]string{"http://localhost:5173"},
		logger,
	)

	return &testServer{handler: router, inbox: box, recognizer: recognizer}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

// verify runs send-otp and verify-otp for mobile and returns the token.
func (s *testServer) verify(t *testing.T, mobile string) string {
	t.Helper()
	rec, _ := s.do(t, http.MethodPost, "/api/candidates/send-otp", map[string]string{"mobile": mobile}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/api/candidates/verify-otp", map[string]string{
		"mobile": mobile,
		"otp":    s.inbox.code(t, mobile),
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := body["verificationToken"].(string)
	require.NotEmpty(t, token)
	return token
}

func registration(aadhar, mobile string) map[string]string {
	return map[string]string{
		"name":         "Rajesh Kumar",
		"dob":          "1992-03-15",
		"aadharNumber": aadhar,
		"mobile":       mobile,
		"address":      "12 MG Road, Pune",
		"program":      "Electrician",
		"category":     "Category 1 - Basic Skills",
		"center":       "Pune",
		"trainer":      "S. Patil",
		"duration":     "3 months",
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
}

func TestSendOTP_Validation(t *testing.T) {
	s := newTestServer(t)

	for _, mobile := range []string{"", "12345", "98765432101", "98765abcde"} {
		rec, body := s.do(t, http.MethodPost, "/api/candidates/send-otp", map[string]string{"mobile": mobile}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, mobile)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Valid 10-digit mobile number is required", body["message"])
	}
	assert.Empty(t, s.inbox.msgs)
}

func TestSendOTP(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/candidates/send-otp", map[string]string{"mobile": "9876543210"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"success": true, "message": "OTP sent successfully"}, body)
	assert.Len(t, s.inbox.code(t, "9876543210"), 4)
}

func TestVerifyOTP(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/candidates/send-otp", map[string]string{"mobile": "9876543210"}, "")
	code := s.inbox.code(t, "9876543210")

	rec, body := s.do(t, http.MethodPost, "/api/candidates/verify-otp", map[string]string{"mobile": "9123456789", "otp": code}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired OTP", body["message"])

	rec, body = s.do(t, http.MethodPost, "/api/candidates/verify-otp", map[string]string{"mobile": "9876543210", "otp": "12"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Mobile number and OTP are required", body["message"])

	rec, body = s.do(t, http.MethodPost, "/api/candidates/verify-otp", map[string]string{"mobile": "9876543210", "otp": code}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "OTP verified successfully", body["message"])
	assert.NotEmpty(t, body["verificationToken"])
	assert.Equal(t, float64(1800), body["expiresIn"])

	rec, body = s.do(t, http.MethodPost, "/api/candidates/verify-otp", map[string]string{"mobile": "9876543210", "otp": code}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or expired OTP", body["message"])
}

func TestRegister_RequiresVerification(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/candidates/register", registration("1234-5678-9012", "9876543210"), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = s.do(t, http.MethodPost, "/api/candidates/register", registration("1234-5678-9012", "9876543210"), "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := s.verify(t, "9123456789")
	rec, body = s.do(t, http.MethodPost, "/api/candidates/register", registration("1234-5678-9012", "9876543210"), token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Verification token does not match mobile number", body["message"])
}

func TestRegister_FullFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.verify(t, "9876543210")

	rec, body := s.do(t, http.MethodPost, "/api/candidates/check-record", map[string]string{"aadharNumber": "1234-5678-9012", "mobile": "9876543210"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["exists"])
	assert.Equal(t, "New candidate - proceed to registration", body["message"])

	rec, body = s.do(t, http.MethodPost, "/api/candidates/register", registration("1234-5678-9012", "9876543210"), token)
	require.Equal(t, http.StatusCreated, rec.Code, body)
	candidate := body["candidate"].(map[string]interface{})
	candidateID := candidate["candidateId"].(string)
	assert.Regexp(t, `^DB\d{6}$`, candidateID)
	assert.Equal(t, "Rajesh Kumar", candidate["name"])
	assert.Equal(t, "Enrolled", candidate["status"])

	rec, body = s.do(t, http.MethodPost, "/api/candidates/register", registration("1234-5678-9012", "9876543210"), token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Candidate with this Aadhar or mobile number already exists", body["message"])

	rec, body = s.do(t, http.MethodPost, "/api/candidates/check-record", map[string]string{"aadharNumber": "1234-5678-9012"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, candidateID, body["candidate"].(map[string]interface{})["candidateId"])

	rec, body = s.do(t, http.MethodGet, "/api/candidates/search?candidateId="+candidateID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	found := body["candidate"].(map[string]interface{})
	assert.Equal(t, true, found["isVerified"])
	assert.NotEmpty(t, found["verificationDate"])

	rec, body = s.do(t, http.MethodPatch, "/api/candidates/"+candidateID+"/status", map[string]string{"status": "Completed"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	updated := body["candidate"].(map[string]interface{})
	assert.Equal(t, "Completed", updated["status"])
	assert.NotEmpty(t, updated["completionDate"])

	rec, body = s.do(t, http.MethodGet, "/api/candidates/all?status=Completed", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(1), body["currentPage"])
	assert.Len(t, body["candidates"], 1)
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t)
	token := s.verify(t, "9876543210")

	req := registration("123456789012", "9876543210")
	req["category"] = "Category 9"
	delete(req, "trainer")

	rec, body := s.do(t, http.MethodPost, "/api/candidates/register", req, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid registration details", body["message"])

	var fields []string
	for _, e := range body["errors"].([]interface{}) {
		fields = append(fields, e.(map[string]interface{})["field"].(string))
	}
	assert.ElementsMatch(t, []string{"aadharNumber", "category", "trainer"}, fields)
}

func TestCheckRecord_Validation(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/candidates/check-record", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Aadhar number or mobile is required", body["message"])

	rec, _ = s.do(t, http.MethodPost, "/api/candidates/check-record", map[string]string{"mobile": "123"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/candidates/search", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Search parameter is required", body["message"])

	rec, body = s.do(t, http.MethodGet, "/api/candidates/search?mobile=9876543210", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Candidate not found", body["message"])
}

func TestList_Pagination(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/candidates/all?page=abc&limit=-3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["currentPage"])
	assert.Equal(t, float64(0), body["total"])
	assert.Equal(t, float64(0), body["totalPages"])
	assert.Equal(t, []interface{}{}, body["candidates"])

	rec, body = s.do(t, http.MethodGet, "/api/candidates/all?status=Graduated", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid status filter", body["message"])
}

func TestList_PagePastEnd(t *testing.T) {
	s := newTestServer(t)
	token := s.verify(t, "9876543210")
	rec, _ := s.do(t, http.MethodPost, "/api/candidates/register", registration("1234-5678-9012", "9876543210"), token)
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, page := range []string{"2", "9223372036854775807"} {
		rec, body := s.do(t, http.MethodGet, "/api/candidates/all?limit=10&page="+page, nil, "")
		require.Equal(t, http.StatusOK, rec.Code, page)
		assert.Equal(t, float64(1), body["total"])
		assert.Equal(t, float64(1), body["totalPages"])
		assert.Equal(t, []interface{}{}, body["candidates"])
	}
}

func TestUpdateStatus_Errors(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPatch, "/api/candidates/DB000001/status", map[string]string{"status": "Graduated"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := s.do(t, http.MethodPatch, "/api/candidates/DB000001/status", map[string]string{"status": "Dropped"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Candidate not found", body["message"])
}

func uploadRequest(t *testing.T, field, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="card.png"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates/extract-identity", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestExtractIdentity(t *testing.T) {
	s := newTestServer(t)
	s.recognizer.text = "GOVERNMENT OF INDIA\nName: Rajesh Kumar\nDOB: 15/03/1992\nMale\n1234 5678 9012"

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, uploadRequest(t, "image", "image/png", []byte("fake png")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"data":{"name":"Rajesh Kumar","dob":"1992-03-15","aadhar":"1234-5678-9012"}}`, rec.Body.String())
	assert.Equal(t, "image/png", s.recognizer.contentType)
}

func TestExtractIdentity_NothingFound(t *testing.T) {
	s := newTestServer(t)
	s.recognizer.text = "@@@ ###"

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, uploadRequest(t, "image", "image/jpeg", []byte("fake jpeg")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"name":"","dob":"","aadhar":""}}`, rec.Body.String())
}

func TestExtractIdentity_Errors(t *testing.T) {
	t.Run("recognizer failure", func(t *testing.T) {
		s := newTestServer(t)
		s.recognizer.err = errors.New("tesseract crashed")

		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, uploadRequest(t, "image", "image/png", []byte("fake png")))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.JSONEq(t, `{"success":false,"message":"Failed to extract data from the image"}`, rec.Body.String())
	})

	t.Run("wrong field", func(t *testing.T) {
		s := newTestServer(t)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, uploadRequest(t, "file", "image/png", []byte("fake png")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not an image", func(t *testing.T) {
		s := newTestServer(t)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, uploadRequest(t, "image", "text/plain", []byte("hello")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "must be an image")
	})

	t.Run("not multipart", func(t *testing.T) {
		s := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/candidates/extract-identity", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
