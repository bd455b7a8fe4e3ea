package v380

import (
	"encoding/binary"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamChannelHandshakeAndInit(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		open := make([]byte, streamOpenSize)
		if _, err := conn.Read(open); err != nil {
			return
		}
		require.Equal(t, streamOpenMagicA, binary.LittleEndian.Uint32(open[0:4]))
		require.Equal(t, streamOpenMagicB, binary.LittleEndian.Uint32(open[4:8]))
		require.Equal(t, uint32(777), binary.LittleEndian.Uint32(open[70:74]))
		require.Equal(t, uint32(222), binary.LittleEndian.Uint32(open[74:78]))
		require.Equal(t, uint32(111), binary.LittleEndian.Uint32(open[78:82]))

		resp := make([]byte, 12)
		resp[0], resp[1] = 0x91, 0x01
		binary.LittleEndian.PutUint32(resp[8:12], 4)
		conn.Write(resp)

		init := make([]byte, streamOpenSize)
		if _, err := conn.Read(init); err != nil {
			return
		}
		require.Equal(t, initPacket, init[:len(initPacket)])
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	endpoints := DefaultEndpoints()
	endpoints.Host = "127.0.0.1"
	endpoints.StreamPort = port

	sc, err := Open(endpoints, 777, Session{DeviceID: 777, ID: 111, Handle: 222}, nil)
	require.NoError(t, err)
	defer sc.Close()

	<-done
}

func TestStreamChannelHandshakeBadStatus(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		open := make([]byte, streamOpenSize)
		conn.Read(open)

		resp := make([]byte, 12)
		resp[0], resp[1] = 0x91, 0x01
		binary.LittleEndian.PutUint32(resp[8:12], 99)
		conn.Write(resp)
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	endpoints := DefaultEndpoints()
	endpoints.Host = "127.0.0.1"
	endpoints.StreamPort = port

	_, err = Open(endpoints, 1, Session{}, nil)
	require.Error(t, err)
}

func TestMaybeKeepaliveForceBypassesLimiter(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	recvd := make(chan []byte, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		open := make([]byte, streamOpenSize)
		conn.Read(open)
		resp := make([]byte, 12)
		resp[0], resp[1] = 0x91, 0x01
		binary.LittleEndian.PutUint32(resp[8:12], 4)
		conn.Write(resp)
		conn.Read(make([]byte, streamOpenSize))

		for i := 0; i < 2; i++ {
			buf := make([]byte, 16)
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			recvd <- buf[:n]
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	endpoints := DefaultEndpoints()
	endpoints.Host = "127.0.0.1"
	endpoints.StreamPort = port

	sc, err := Open(endpoints, 1, Session{}, nil)
	require.NoError(t, err)
	defer sc.Close()

	sent, err := sc.MaybeKeepalive(true)
	require.NoError(t, err)
	require.True(t, sent)

	sent, err = sc.MaybeKeepalive(true)
	require.NoError(t, err)
	require.True(t, sent)

	first := <-recvd
	second := <-recvd
	require.Equal(t, keepalivePacket, first)
	require.Equal(t, keepalivePacket, second)
}
