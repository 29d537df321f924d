package codec

import "crypto/cipher"

// cfb8 implements cipher feedback mode with an 8-bit segment, one block
// encryption per byte. The standard library only provides full-block CFB.
type cfb8 struct {
	block   cipher.Block
	reg     []byte
	out     []byte
	decrypt bool
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) cipher.Stream {
	if len(iv) != block.BlockSize() {
		panic("codec: IV length must equal block size")
	}
	reg := make([]byte, len(iv))
	copy(reg, iv)
	return &cfb8{
		block:   block,
		reg:     reg,
		out:     make([]byte, block.BlockSize()),
		decrypt: decrypt,
	}
}

func (x *cfb8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("codec: output smaller than input")
	}
	for i, in := range src {
		x.block.Encrypt(x.out, x.reg)
		res := in ^ x.out[0]

		// The register always shifts in the cipher text byte.
		fb := res
		if x.decrypt {
			fb = in
		}
		copy(x.reg, x.reg[1:])
		x.reg[len(x.reg)-1] = fb

		dst[i] = res
	}
}
