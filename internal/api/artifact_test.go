package api

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/google/uuid"

	"github.com/koopa0/relay/internal/artifact"
)

func uploadFile(t *testing.T, ts *testServer, sessionID uuid.UUID, filename, contentType string, data []byte) *http.Response {
	t.Helper()

	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("creating part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	mw.Close()

	resp, err := http.Post(ts.srv.URL+"/api/v1/sessions/"+sessionID.String()+"/attachments",
		mw.FormDataContentType(), buf)
	if err != nil {
		t.Fatalf("POST attachment: %v", err)
	}
	return resp
}

func TestAttachments_UploadAndDownload(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	sessID := uuid.New()

	resp := uploadFile(t, ts, sessID, "cat.png", "image/png", []byte("png bytes"))
	checkStatus(t, resp, http.StatusCreated)
	var uploaded artifact.Attachment
	decodeBody(t, resp, &uploaded)
	if uploaded.ID == uuid.Nil || uploaded.Filename != "cat.png" {
		t.Fatalf("uploaded = %+v", uploaded)
	}

	resp, err := http.Get(ts.srv.URL + "/api/v1/attachments/" + uploaded.ID.String())
	if err != nil {
		t.Fatalf("GET attachment: %v", err)
	}
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "png bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestAttachments_UploadUnsupportedType(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := uploadFile(t, ts, uuid.New(), "doc.pdf", "application/pdf", []byte("%PDF"))
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusUnsupportedMediaType)
}

func TestAttachments_UploadMissingFile(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, err := http.Post(ts.srv.URL+"/api/v1/sessions/"+uuid.NewString()+"/attachments",
		"multipart/form-data; boundary=x", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusBadRequest)
}

func TestAttachments_DownloadMissing(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/api/v1/attachments/" + uuid.NewString())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusNotFound)
}

func TestAttachments_ListBySession(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	sessID := uuid.New()

	resp := uploadFile(t, ts, sessID, "a.png", "image/png", []byte("a"))
	resp.Body.Close()
	resp = uploadFile(t, ts, sessID, "b.png", "image/png", []byte("b"))
	resp.Body.Close()

	resp, err := http.Get(ts.srv.URL + "/api/v1/sessions/" + sessID.String() + "/attachments")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	checkStatus(t, resp, http.StatusOK)
	var body struct {
		Attachments []*artifact.Attachment `json:"attachments"`
	}
	decodeBody(t, resp, &body)
	if len(body.Attachments) != 2 {
		t.Errorf("listed %d attachments, want 2", len(body.Attachments))
	}
}
