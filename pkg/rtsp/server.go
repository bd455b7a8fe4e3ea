// Package rtsp implements a minimal RTSP 1.0 server that fans out
// live HEVC video, packetized as RTP, to any number of connected
// media players.
package rtsp

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtcp"

	rtppkg "github.com/ethan/v380-relay/pkg/rtp"
	"github.com/ethan/v380-relay/pkg/v380err"
)

// senderReportInterval is the cadence of RTCP Sender Reports this
// server emits per viewer; the source RTSP server sends no RTCP at
// all, but any real player benefits from knowing the wall-clock to
// RTP-timestamp mapping.
const senderReportInterval = 5 * time.Second

// viewer is one connected media player enrolled after a successful
// PLAY (§4.8's "tuple (control_socket, media_socket, peer_ip,
// peer_media_port)").
type viewer struct {
	control       net.Conn
	media         *net.UDPConn
	peerIP        string
	peerMediaPort int
	dead          bool
}

// Server is the RTSP control-plane listener plus the shared RTP
// packetizer state fanned out to every viewer.
type Server struct {
	port       int
	logger     *slog.Logger
	sessionID  string
	packetizer *rtppkg.Packetizer
	params     rtppkg.ParameterSets

	mu      sync.Mutex
	viewers []*viewer

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer constructs a Server bound to port, with a freshly
// generated RTP packetizer and an 8-digit numeric session id stable
// for the server's lifetime.
func NewServer(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	packetizer, err := rtppkg.NewPacketizer()
	if err != nil {
		return nil, err
	}
	sessionID, err := randomSessionID()
	if err != nil {
		return nil, err
	}
	return &Server{
		port:       port,
		logger:     logger,
		sessionID:  sessionID,
		packetizer: packetizer,
	}, nil
}

func randomSessionID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+10000000, 10), nil
}

// Start binds the TCP listener and begins accepting clients in a
// background goroutine. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return v380err.Transportf("rtsp.listen", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	s.logger.Info("rtsp server started", "port", s.port)
	return nil
}

// Stop closes the listener and every enrolled viewer's sockets.
func (s *Server) Stop() {
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.viewers {
		v.control.Close()
		v.media.Close()
	}
	s.viewers = nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Debug("rtsp accept error", "error", err)
			return
		}
		s.wg.Add(1)
		go s.handleClient(ctx, conn)
	}
}

// SetParameterSets records VPS/SPS/PPS captured from the first
// I-frame, used in subsequent DESCRIBE responses.
func (s *Server) SetParameterSets(ps rtppkg.ParameterSets) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = ps
}

// SendFrame packetizes a decrypted Annex-B access unit and fans it
// out over UDP to every enrolled viewer, removing any viewer whose
// send fails.
func (s *Server) SendFrame(annexB []byte) {
	s.mu.Lock()
	viewers := append([]*viewer(nil), s.viewers...)
	s.mu.Unlock()
	if len(viewers) == 0 {
		return
	}

	nals := rtppkg.SplitAnnexB(annexB)
	s.params.Observe(nals)

	var dead []int
	for i, v := range viewers {
		for j, nal := range nals {
			isLast := j == len(nals)-1
			packets, err := s.packetizer.PacketizeNAL(nal, isLast)
			if err != nil {
				dead = append(dead, i)
				break
			}
			if !s.sendToViewer(v, packets) {
				dead = append(dead, i)
				break
			}
		}
	}
	s.packetizer.AdvanceTimestamp(3600)

	if len(dead) > 0 {
		s.removeViewers(dead)
	}
}

func (s *Server) sendToViewer(v *viewer, packets [][]byte) bool {
	addr := &net.UDPAddr{IP: net.ParseIP(v.peerIP), Port: v.peerMediaPort}
	for _, pkt := range packets {
		if _, err := v.media.WriteToUDP(pkt, addr); err != nil {
			return false
		}
	}
	return true
}

func (s *Server) removeViewers(indices []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		seen[i] = true
	}
	kept := s.viewers[:0]
	for i, v := range s.viewers {
		if seen[i] {
			v.control.Close()
			v.media.Close()
			continue
		}
		kept = append(kept, v)
	}
	s.viewers = kept
}

func (s *Server) handleClient(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	addr := conn.RemoteAddr().String()
	s.logger.Debug("rtsp client connected", "addr", addr)

	var mediaConn *net.UDPConn
	var clientPort int
	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		req, err := parseRequest(reader)
		if err != nil {
			break
		}

		switch req.method {
		case "OPTIONS":
			writeResponse(conn, 200, req.cseq, map[string]string{
				"Public": "OPTIONS, DESCRIBE, SETUP, PLAY, TEARDOWN",
			}, "")

		case "DESCRIBE":
			s.mu.Lock()
			params := s.params
			s.mu.Unlock()
			sdpBytes, err := generateSDP(&params)
			if err != nil {
				writeResponse(conn, 500, req.cseq, nil, "")
				continue
			}
			writeResponse(conn, 200, req.cseq, map[string]string{
				"Content-Type":   "application/sdp",
				"Content-Length": strconv.Itoa(len(sdpBytes)),
			}, string(sdpBytes))

		case "SETUP":
			clientPort = parseClientPort(req.headers["transport"])
			if clientPort == 0 {
				clientPort = 5000
			}
			udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
			if err != nil {
				writeResponse(conn, 500, req.cseq, nil, "")
				continue
			}
			mediaConn = udpConn
			serverPort := udpConn.LocalAddr().(*net.UDPAddr).Port

			writeResponse(conn, 200, req.cseq, map[string]string{
				"Transport": fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d;server_port=%d-%d",
					clientPort, clientPort+1, serverPort, serverPort+1),
				"Session": s.sessionID,
			}, "")

		case "PLAY":
			writeResponse(conn, 200, req.cseq, map[string]string{
				"Session": s.sessionID,
				"Range":   "npt=0.000-",
			}, "")

			if mediaConn != nil && clientPort != 0 {
				host, _, _ := net.SplitHostPort(addr)
				v := &viewer{control: conn, media: mediaConn, peerIP: host, peerMediaPort: clientPort}
				s.mu.Lock()
				s.viewers = append(s.viewers, v)
				s.mu.Unlock()
				go s.sendReports(ctx, v, clientPort+1)
				s.logger.Debug("viewer enrolled", "addr", host, "port", clientPort)
			}

		case "TEARDOWN":
			writeResponse(conn, 200, req.cseq, map[string]string{
				"Session": s.sessionID,
			}, "")
			s.dropViewer(conn)
			return

		default:
			writeResponse(conn, 400, req.cseq, nil, "")
		}
	}

	s.dropViewer(conn)
	s.logger.Debug("rtsp client disconnected", "addr", addr)
}

func (s *Server) dropViewer(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.viewers[:0]
	for _, v := range s.viewers {
		if v.control == conn {
			v.media.Close()
			continue
		}
		kept = append(kept, v)
	}
	s.viewers = kept
}

// sendReports periodically writes an RTCP Sender Report to the
// viewer's client_port+1, the conventional RTCP companion port,
// stopping once ctx is canceled or the viewer is torn down.
func (s *Server) sendReports(ctx context.Context, v *viewer, rtcpPort int) {
	ticker := time.NewTicker(senderReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			stillEnrolled := false
			for _, vv := range s.viewers {
				if vv == v {
					stillEnrolled = true
					break
				}
			}
			s.mu.Unlock()
			if !stillEnrolled {
				return
			}

			sr := &rtcp.SenderReport{
				SSRC:        s.packetizer.SSRC(),
				NTPTime:     ntpNow(),
				RTPTime:     0,
				PacketCount: 0,
				OctetCount:  0,
			}
			data, err := sr.Marshal()
			if err != nil {
				continue
			}
			addr := &net.UDPAddr{IP: net.ParseIP(v.peerIP), Port: rtcpPort}
			v.media.WriteToUDP(data, addr)
		}
	}
}

const ntpEpochOffset = 2208988800

func ntpNow() uint64 {
	now := time.Now()
	seconds := uint64(now.Unix()+ntpEpochOffset) << 32
	fraction := uint64(now.Nanosecond()) * (1 << 32) / 1e9
	return seconds | fraction
}

type rtspRequest struct {
	method  string
	uri     string
	cseq    string
	headers map[string]string
}

// parseRequest reads one RTSP request, tolerating mixed-case header
// names and CRLF line endings per §9.
func parseRequest(reader *bufio.Reader) (*rtspRequest, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return nil, v380err.Protocolf("rtsp.request", fmt.Errorf("malformed request line: %q", line))
	}

	req := &rtspRequest{method: parts[0], uri: parts[1], headers: map[string]string{}}
	for {
		hline, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		hline = strings.TrimRight(hline, "\r\n")
		if hline == "" {
			break
		}
		idx := strings.IndexByte(hline, ':')
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(hline[:idx]))
		val := strings.TrimSpace(hline[idx+1:])
		req.headers[key] = val
	}
	req.cseq = req.headers["cseq"]
	if req.cseq == "" {
		req.cseq = "0"
	}
	return req, nil
}

func parseClientPort(transport string) int {
	for _, part := range strings.Split(transport, ";") {
		if strings.HasPrefix(part, "client_port=") {
			ports := strings.TrimPrefix(part, "client_port=")
			first := strings.Split(ports, "-")[0]
			n, err := strconv.Atoi(first)
			if err != nil {
				return 0
			}
			return n
		}
	}
	return 0
}

var statusText = map[int]string{
	200: "OK",
	400: "Bad Request",
	404: "Not Found",
	500: "Internal Server Error",
}

func writeResponse(conn net.Conn, code int, cseq string, headers map[string]string, body string) {
	text, ok := statusText[code]
	if !ok {
		text = "Unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "RTSP/1.0 %d %s\r\n", code, text)
	fmt.Fprintf(&b, "CSeq: %s\r\n", cseq)
	for k, v := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	conn.Write([]byte(b.String()))
}
