package s3

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a *Store whose SDK client talks to an in-process
// fake bucket instead of the network. Only the calls the archiver needs are
// served.
func NewMockForTests() *Store {
	fake := &fakeBucket{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket", presign: s3.NewPresignClient(client)}
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Path-style addressing puts the bucket first: /mock-bucket/<key>.
	key := ""
	if _, rest, ok := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/"); ok {
		key = rest
	}

	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return f.handleList(req.URL.Query().Get("prefix"))
	case req.Method == http.MethodPut:
		return f.handlePut(key, req)
	case req.Method == http.MethodHead:
		return f.handleRead(key, false)
	case req.Method == http.MethodGet:
		return f.handleRead(key, true)
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return fakeResponse(http.StatusNoContent, nil, nil), nil
	}
	return fakeResponse(http.StatusNotImplemented, nil, nil), nil
}

type bucketListing struct {
	XMLName     xml.Name       `xml:"ListBucketResult"`
	IsTruncated bool           `xml:"IsTruncated"`
	Contents    []bucketObject `xml:"Contents"`
}

type bucketObject struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

func (f *fakeBucket) handleList(prefix string) (*http.Response, error) {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	listing := bucketListing{}
	for _, k := range keys {
		obj := f.objects[k]
		listing.Contents = append(listing.Contents, bucketObject{
			Key:          k,
			Size:         len(obj.data),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	body, err := xml.Marshal(listing)
	if err != nil {
		return nil, err
	}
	return fakeResponse(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, body), nil
}

func (f *fakeBucket) handlePut(key string, req *http.Request) (*http.Response, error) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	body := unchunk(raw)
	if _, exists := f.objects[key]; !exists {
		f.objects[key] = fakeObject{
			data:        body,
			contentType: req.Header.Get("Content-Type"),
			modified:    time.Now().UTC(),
		}
	}
	return fakeResponse(http.StatusOK, http.Header{"ETag": {`"etag"`}}, nil), nil
}

func (f *fakeBucket) handleRead(key string, withBody bool) (*http.Response, error) {
	obj, ok := f.objects[key]
	if !ok {
		return fakeResponse(http.StatusNotFound, nil, nil), nil
	}
	header := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.data))},
		"Content-Type":   {obj.contentType},
		"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
		"ETag":           {`"etag"`},
	}
	if !withBody {
		return fakeResponse(http.StatusOK, header, nil), nil
	}
	return fakeResponse(http.StatusOK, header, obj.data), nil
}

func fakeResponse(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

// unchunk unwraps a single-chunk aws-chunked payload (<hex size>\r\n<data>\r\n0...)
// and returns the input unchanged when it is not chunked.
func unchunk(raw []byte) []byte {
	sizeLine, rest, ok := bytes.Cut(raw, []byte("\r\n"))
	if !ok {
		return raw
	}
	size, err := strconv.ParseInt(string(sizeLine), 16, 64)
	if err != nil || size < 0 || int64(len(rest)) < size {
		return raw
	}
	data, trailer, ok := bytes.Cut(rest[size:], []byte("\r\n"))
	if !ok || len(data) != 0 || !bytes.HasPrefix(trailer, []byte("0")) {
		return raw
	}
	return rest[:size]
}
