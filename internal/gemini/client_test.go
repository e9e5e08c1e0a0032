package gemini

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"
)

// selfSignedCert builds a throwaway certificate for the loopback test
// server. Self-signed is exactly what real capsules serve.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// startServer runs a loopback Gemini server that feeds each request line
// to handler, which writes the raw response. Returns the dial address.
func startServer(t *testing.T, handler func(request string, conn io.Writer)) string {
	t.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{selfSignedCert(t)},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				line, err := bufio.NewReader(c).ReadString('\n')
				if err != nil {
					return
				}
				handler(strings.TrimRight(line, "\r\n"), c)
			}(conn)
		}
	}()

	return ln.Addr().String()
}

// serverURL builds the fetch URL for a test server address.
func serverURL(t *testing.T, addr, path string) *url.URL {
	t.Helper()

	u, err := url.Parse("gemini://" + addr + path)
	if err != nil {
		t.Fatalf("failed to build URL: %v", err)
	}
	return u
}

func TestClientFetchSuccess(t *testing.T) {
	t.Parallel()

	body := "# Welcome\n" +
		"=> /about About this capsule\n" +
		"=> gopher://example.org/ not followed\n" +
		"=> /about duplicate\n" +
		"=> gemini://other.example.org/ elsewhere\n"
	addr := startServer(t, func(request string, conn io.Writer) {
		io.WriteString(conn, "20 text/gemini\r\n"+body)
	})

	client, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}

	u := serverURL(t, addr, "/")
	outcome := client.Fetch(context.Background(), u)

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %d, want OutcomeSuccess (err: %v)", outcome.Kind, outcome.Err)
	}
	if outcome.Header.Status != 20 {
		t.Errorf("Status = %d, want 20", outcome.Header.Status)
	}
	if outcome.MediaType != "text/gemini" {
		t.Errorf("MediaType = %q, want text/gemini", outcome.MediaType)
	}
	if outcome.Title() != "Welcome" {
		t.Errorf("Title() = %q, want Welcome", outcome.Title())
	}
	if outcome.Truncated {
		t.Error("Truncated should be false")
	}

	// gopher link skipped, duplicate deduplicated
	wantLinks := []string{
		"gemini://" + addr + "/about",
		"gemini://other.example.org/",
	}
	if len(outcome.Links) != len(wantLinks) {
		t.Fatalf("got %d links %v, want %d", len(outcome.Links), outcome.Links, len(wantLinks))
	}
	for i, want := range wantLinks {
		if outcome.Links[i].String() != want {
			t.Errorf("link %d = %q, want %q", i, outcome.Links[i], want)
		}
	}
}

func TestClientFetchNonGemtext(t *testing.T) {
	t.Parallel()

	addr := startServer(t, func(request string, conn io.Writer) {
		io.WriteString(conn, "20 text/plain\r\njust some text\n=> /not-a-link\n")
	})

	client, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}

	outcome := client.Fetch(context.Background(), serverURL(t, addr, "/file.txt"))
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %d, want OutcomeSuccess (err: %v)", outcome.Kind, outcome.Err)
	}
	if outcome.MediaType != "text/plain" {
		t.Errorf("MediaType = %q, want text/plain", outcome.MediaType)
	}
	if outcome.Document != nil {
		t.Error("Document should be nil for non-gemtext bodies")
	}
	if len(outcome.Links) != 0 {
		t.Errorf("Links = %v, want none", outcome.Links)
	}
}

func TestClientFetchEmptyMetaDefaultsToGemtext(t *testing.T) {
	t.Parallel()

	addr := startServer(t, func(request string, conn io.Writer) {
		io.WriteString(conn, "20\r\n# Bare status\n")
	})

	client, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}

	outcome := client.Fetch(context.Background(), serverURL(t, addr, "/"))
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %d, want OutcomeSuccess (err: %v)", outcome.Kind, outcome.Err)
	}
	if outcome.MediaType != "text/gemini" {
		t.Errorf("MediaType = %q, want text/gemini", outcome.MediaType)
	}
	if outcome.Title() != "Bare status" {
		t.Errorf("Title() = %q, want Bare status", outcome.Title())
	}
}

func TestClientFetchRedirect(t *testing.T) {
	t.Parallel()

	addr := startServer(t, func(request string, conn io.Writer) {
		io.WriteString(conn, "31 gemini://example.org/new\r\n")
	})

	client, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}

	outcome := client.Fetch(context.Background(), serverURL(t, addr, "/old"))
	if outcome.Kind != OutcomeRedirect {
		t.Fatalf("Kind = %d, want OutcomeRedirect (err: %v)", outcome.Kind, outcome.Err)
	}
	if outcome.Target.String() != "gemini://example.org/new" {
		t.Errorf("Target = %q, want gemini://example.org/new", outcome.Target)
	}
}

func TestClientFetchRelativeRedirect(t *testing.T) {
	t.Parallel()

	addr := startServer(t, func(request string, conn io.Writer) {
		io.WriteString(conn, "30 /moved\r\n")
	})

	client, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}

	outcome := client.Fetch(context.Background(), serverURL(t, addr, "/dir/page"))
	if outcome.Kind != OutcomeRedirect {
		t.Fatalf("Kind = %d, want OutcomeRedirect (err: %v)", outcome.Kind, outcome.Err)
	}
	want := "gemini://" + addr + "/moved"
	if outcome.Target.String() != want {
		t.Errorf("Target = %q, want %q", outcome.Target, want)
	}
}

func TestClientFetchCrossProtocolRedirect(t *testing.T) {
	t.Parallel()

	addr := startServer(t, func(request string, conn io.Writer) {
		io.WriteString(conn, "31 https://example.org/\r\n")
	})

	client, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}

	outcome := client.Fetch(context.Background(), serverURL(t, addr, "/"))
	if outcome.Kind != OutcomeFailure {
		t.Fatalf("Kind = %d, want OutcomeFailure", outcome.Kind)
	}
	if outcome.Err.Kind != FailureUnsupportedScheme {
		t.Errorf("failure kind = %s, want unsupported-scheme", outcome.Err.Kind)
	}
}

func TestClientFetchStatusFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     FailureKind
	}{
		{name: "input required", response: "10 Enter search terms\r\n", want: FailureInputRequired},
		{name: "temporary failure", response: "44 slow down\r\n", want: FailureTemporary},
		{name: "permanent failure", response: "51 not found\r\n", want: FailurePermanent},
		{name: "certificate required", response: "60 cert please\r\n", want: FailureCertRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			addr := startServer(t, func(request string, conn io.Writer) {
				io.WriteString(conn, tt.response)
			})

			client, err := NewClient()
			if err != nil {
				t.Fatal(err)
			}

			outcome := client.Fetch(context.Background(), serverURL(t, addr, "/"))
			if outcome.Kind != OutcomeFailure {
				t.Fatalf("Kind = %d, want OutcomeFailure", outcome.Kind)
			}
			if outcome.Err.Kind != tt.want {
				t.Errorf("failure kind = %s, want %s", outcome.Err.Kind, tt.want)
			}
			if outcome.Header.Status == 0 {
				t.Error("expected the response header to be recorded")
			}
		})
	}
}

func TestClientFetchMalformedHeader(t *testing.T) {
	t.Parallel()

	addr := startServer(t, func(request string, conn io.Writer) {
		io.WriteString(conn, "not a gemini header\r\n")
	})

	client, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}

	outcome := client.Fetch(context.Background(), serverURL(t, addr, "/"))
	if outcome.Kind != OutcomeFailure {
		t.Fatalf("Kind = %d, want OutcomeFailure", outcome.Kind)
	}
	if outcome.Err.Kind != FailureProtocol {
		t.Errorf("failure kind = %s, want protocol", outcome.Err.Kind)
	}
}

func TestClientFetchReadTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	addr := startServer(t, func(request string, conn io.Writer) {
		// Hold the connection open without answering.
		<-release
	})

	client, err := NewClient(WithReadTimeout(100 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	outcome := client.Fetch(context.Background(), serverURL(t, addr, "/"))
	if outcome.Kind != OutcomeFailure {
		t.Fatalf("Kind = %d, want OutcomeFailure", outcome.Kind)
	}
	if outcome.Err.Kind != FailureReadTimeout {
		t.Errorf("failure kind = %s, want read-timeout", outcome.Err.Kind)
	}
}

func TestClientFetchConnectRefused(t *testing.T) {
	t.Parallel()

	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client, err := NewClient(WithConnectTimeout(2 * time.Second))
	if err != nil {
		t.Fatal(err)
	}

	outcome := client.Fetch(context.Background(), serverURL(t, addr, "/"))
	if outcome.Kind != OutcomeFailure {
		t.Fatalf("Kind = %d, want OutcomeFailure", outcome.Kind)
	}
	if outcome.Err.Kind != FailureConnectRefused {
		t.Errorf("failure kind = %s, want connect-refused", outcome.Err.Kind)
	}
}

func TestClientFetchTruncation(t *testing.T) {
	t.Parallel()

	addr := startServer(t, func(request string, conn io.Writer) {
		io.WriteString(conn, "20 text/plain\r\n"+strings.Repeat("x", 100))
	})

	client, err := NewClient(WithMaxBodySize(10))
	if err != nil {
		t.Fatal(err)
	}

	outcome := client.Fetch(context.Background(), serverURL(t, addr, "/big"))
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %d, want OutcomeSuccess (err: %v)", outcome.Kind, outcome.Err)
	}
	if !outcome.Truncated {
		t.Error("Truncated should be true")
	}
	if len(outcome.Body) != 10 {
		t.Errorf("len(Body) = %d, want 10", len(outcome.Body))
	}
}

func TestClientFetchSendsRequestLine(t *testing.T) {
	t.Parallel()

	requests := make(chan string, 1)
	addr := startServer(t, func(request string, conn io.Writer) {
		requests <- request
		io.WriteString(conn, "20 text/gemini\r\nok\n")
	})

	client, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}

	u := serverURL(t, addr, "/path?q=1")
	outcome := client.Fetch(context.Background(), u)
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %d, want OutcomeSuccess (err: %v)", outcome.Kind, outcome.Err)
	}

	select {
	case got := <-requests:
		if got != u.String() {
			t.Errorf("request line = %q, want %q", got, u.String())
		}
	case <-time.After(time.Second):
		t.Fatal("server never saw the request")
	}
}
