package vmc_protocol

import (
	"bytes"
	"testing"

	"github.com/bujia-iot/vmc-gateway/pkg/constants"
)

// TestFrameRoundTrip 编码后再解码应还原出等价的帧
func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		frame *Frame
	}{
		{"空数据区", NewFrame(constants.CmdGetDeviceID, nil)},
		{"单字节数据", NewFrame(constants.CmdRemoveFault, []byte{0xFF})},
		{"出货命令", NewFrame(constants.CmdDelivery, []byte{21, 1})},
		{"控制器方向帧", &Frame{Header: constants.HeaderVMCToApp, Command: constants.CmdQueryStatus, Data: []byte{0x01}}},
		{"最大数据区", NewFrame(0x77, bytes.Repeat([]byte{0xAB}, 255))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := tc.frame.Encode()
			decoded, ok := Decode(encoded)
			if !ok {
				t.Fatalf("解码失败: % X", encoded)
			}
			if decoded.Header != tc.frame.Header || decoded.Command != tc.frame.Command {
				t.Errorf("帧头/命令不一致: got %+v want %+v", decoded, tc.frame)
			}
			if !bytes.Equal(decoded.Data, tc.frame.Data) && !(len(decoded.Data) == 0 && len(tc.frame.Data) == 0) {
				t.Errorf("数据区不一致: got % X want % X", decoded.Data, tc.frame.Data)
			}
		})
	}
}

// TestFrameLayout 线上布局逐字节固定
func TestFrameLayout(t *testing.T) {
	frame := NewFrame(constants.CmdDelivery, []byte{21, 1})
	encoded := frame.Encode()

	want := []byte{
		constants.FrameAddress,
		constants.FrameNumber,
		constants.HeaderAppToVMC,
		constants.CmdDelivery,
		2,
		21, 1,
		0, // 校验和占位
	}
	want[len(want)-1] = byte(uint32(constants.HeaderAppToVMC) + uint32(constants.CmdDelivery) + 2 + 21 + 1)

	if !bytes.Equal(encoded, want) {
		t.Fatalf("布局不符:\ngot  % X\nwant % X", encoded, want)
	}
}

// TestChecksumExcludesEnvelope 地址、帧号与校验和不参与求和
func TestChecksumExcludesEnvelope(t *testing.T) {
	sum := Checksum(constants.HeaderAppToVMC, constants.CmdQueryStatus, 2, []byte{11, 1})
	want := byte((uint32(constants.HeaderAppToVMC) + uint32(constants.CmdQueryStatus) + 2 + 11 + 1) & 0xFF)
	if sum != want {
		t.Fatalf("校验和 0x%02X，期望 0x%02X", sum, want)
	}

	// 求和超过255时取低8位
	overflow := Checksum(constants.HeaderVMCToApp, constants.CmdQueryStatus, 1, []byte{0xFF})
	wantOverflow := byte((uint32(constants.HeaderVMCToApp) + uint32(constants.CmdQueryStatus) + 1 + 0xFF) & 0xFF)
	if overflow != wantOverflow {
		t.Fatalf("溢出校验和 0x%02X，期望 0x%02X", overflow, wantOverflow)
	}
}

// TestDecodeRejectsMutation 改动已编码帧的任何单个字节都必须导致解码失败
func TestDecodeRejectsMutation(t *testing.T) {
	frame := NewFrame(constants.CmdDelivery, []byte{34, 2})
	encoded := frame.Encode()

	for i := range encoded {
		mutated := make([]byte, len(encoded))
		copy(mutated, encoded)
		mutated[i] ^= 0xFF

		if _, ok := Decode(mutated); ok {
			t.Errorf("第 %d 字节破损后解码仍然成功: % X", i, mutated)
		}
	}
}

// TestDecodeRejectsMalformed 非法形态一律返回失败而不是panic
func TestDecodeRejectsMalformed(t *testing.T) {
	valid := NewFrame(constants.CmdQueryStatus, []byte{11, 1}).Encode()

	cases := []struct {
		name string
		buf  []byte
	}{
		{"空输入", nil},
		{"不足最小帧长", valid[:5]},
		{"地址错误", append([]byte{0xEE}, valid[1:]...)},
		{"帧号错误", func() []byte {
			b := append([]byte(nil), valid...)
			b[1] = 0x00
			return b
		}()},
		{"未知帧头", func() []byte {
			b := append([]byte(nil), valid...)
			b[2] = 0x33
			// 重算校验和，确保失败原因是帧头而非校验和
			b[len(b)-1] = Checksum(0x33, b[3], b[4], b[5:len(b)-1])
			return b
		}()},
		{"声明长度超出实际", func() []byte {
			b := append([]byte(nil), valid...)
			b[4] = 200
			return b
		}()},
		{"截断的数据区", valid[:len(valid)-2]},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := Decode(tc.buf); ok {
				t.Errorf("非法输入解码成功: % X", tc.buf)
			}
		})
	}
}
