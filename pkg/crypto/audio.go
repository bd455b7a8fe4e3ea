package crypto

// DecryptAudio applies full AES-ECB decryption to every complete
// 16-byte block in data; any trailing bytes that don't fill a block
// pass through unchanged. Unlike video, audio frames are never
// selectively encrypted.
func DecryptAudio(key Key, data []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	full := (len(data) / 16) * 16
	out := make([]byte, 0, len(data))
	if full > 0 {
		chunk := make([]byte, full)
		copy(chunk, data[:full])
		ecbDecrypt(block, chunk)
		out = append(out, chunk...)
	}
	out = append(out, data[full:]...)
	return out, nil
}
