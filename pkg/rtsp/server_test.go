package rtsp

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRequestBasic(t *testing.T) {
	raw := "OPTIONS rtsp://host/stream RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: test\r\n\r\n"
	req, err := parseRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, "OPTIONS", req.method)
	require.Equal(t, "1", req.cseq)
	require.Equal(t, "test", req.headers["user-agent"])
}

func TestParseRequestMixedCaseHeaders(t *testing.T) {
	raw := "DESCRIBE rtsp://host/stream RTSP/1.0\r\nCsEq: 42\r\nACCEPT: application/sdp\r\n\r\n"
	req, err := parseRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, "42", req.cseq)
	require.Equal(t, "application/sdp", req.headers["accept"])
}

func TestParseClientPort(t *testing.T) {
	require.Equal(t, 5000, parseClientPort("RTP/AVP;unicast;client_port=5000-5001"))
	require.Equal(t, 0, parseClientPort("RTP/AVP;unicast"))
}

func TestRTSPSessionLifecycle(t *testing.T) {
	srv, err := NewServer(0, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.ln = ln
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.wg.Add(1)
	go srv.acceptLoop(ctx)
	defer srv.Stop()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	conn.Write([]byte("OPTIONS rtsp://x/stream RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
	status := readStatusLine(t, reader)
	require.Contains(t, status, "200")

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	require.NoError(t, err)
	defer udpConn.Close()
	clientPort := udpConn.LocalAddr().(*net.UDPAddr).Port

	conn.Write([]byte("SETUP rtsp://x/stream RTSP/1.0\r\nCSeq: 2\r\nTransport: RTP/AVP;unicast;client_port=" +
		strconv.Itoa(clientPort) + "-" + strconv.Itoa(clientPort+1) + "\r\n\r\n"))
	status = readStatusLine(t, reader)
	require.Contains(t, status, "200")

	conn.Write([]byte("PLAY rtsp://x/stream RTSP/1.0\r\nCSeq: 3\r\n\r\n"))
	status = readStatusLine(t, reader)
	require.Contains(t, status, "200")

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.viewers) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Write([]byte("TEARDOWN rtsp://x/stream RTSP/1.0\r\nCSeq: 4\r\n\r\n"))
	status = readStatusLine(t, reader)
	require.Contains(t, status, "200")
}

func readStatusLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)

	for {
		h, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimRight(h, "\r\n") == "" {
			break
		}
	}
	return line
}
