// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracelab

package sdbus

import "fmt"

// FormatFrame formats a decoded frame into the analyzer's human-readable
// report form. Command, R1 and R3 frames render as a single line; R6 and R2
// render as a multi-line block.
func FormatFrame(f *Frame) string {
	switch f.Kind() {
	case KindCommand:
		prefix := " CMD"
		if f.IsAppCommand() {
			prefix = "ACMD"
		}
		return fmt.Sprintf("Command:      Raw: %012x  Start + Tx: %02x  Cmd Idx: %s%02d  Arg: %08x  CRC7 + Stop: %02x\n",
			mustRawValue(f), f.StartTransfer(), prefix, f.CommandIndex(), f.Argument(), f.CRC7Stop())

	case KindResponseR3:
		return fmt.Sprintf("R3 (OCR):     Raw: %012x  Start + Rx: %02x  Reserved:    %02x  OCR: %08x  Reserved:    %02x\n",
			mustRawValue(f), f.StartTransfer(), f.CommandIndex(), f.OCR(), f.CRC7Stop())

	case KindResponseR6:
		return fmt.Sprintf("R6 (RCA):     Raw: %012x\n"+
			"              Start Rx: %02x\n"+
			"              Cmd Idx:  %02x\n"+
			"              RCA: %04x\n"+
			"              Card Status: %04x\n"+
			"              CRC7 Stop: %02x\n",
			mustRawValue(f), f.StartTransfer(), f.CommandIndex(), f.NewRCA(), f.CardStatus(), f.CRC7Stop())

	case KindResponseR2:
		return fmt.Sprintf("R2 (CID/CSD): Raw: %s\n"+
			"              Start Rx: %02x\n"+
			"              Reserved: %02x\n"+
			"              CID/CSD + Stop: %s\n",
			f.Raw().HexString(), f.StartTransfer(), f.Reserved(), f.Register().HexString())

	default: // R1
		return fmt.Sprintf("R1 (Normal):  Raw: %012x  Start + Rx: %02x  Cmd Idx:  CMD%02d  Arg: %08x  CRC7 + Stop: %02x\n",
			mustRawValue(f), f.StartTransfer(), f.CommandIndex(), f.Argument(), f.CRC7Stop())
	}
}

// mustRawValue reads a 48-bit raw frame as an integer for %x rendering.
// Long frames never reach this path.
func mustRawValue(f *Frame) uint64 {
	return fieldValue(f.raw)
}

// FormatClockRate formats a transaction clock estimate report line.
func FormatClockRate(hz float64) string {
	return fmt.Sprintf("Transaction Clock Rate: %g Hz\n", hz)
}

// CommandName returns the conventional mnemonic for a command index, or
// "UNKNOWN" for indexes this analyzer does not name. The app flag selects
// the ACMD namespace used after APP_CMD.
func CommandName(index uint8, app bool) string {
	if app {
		switch index {
		case 6:
			return "SET_BUS_WIDTH"
		case 13:
			return "SD_STATUS"
		case 22:
			return "SEND_NUM_WR_BLOCKS"
		case 23:
			return "SET_WR_BLK_ERASE_COUNT"
		case 41:
			return "SD_SEND_OP_COND"
		case 42:
			return "SET_CLR_CARD_DETECT"
		case 51:
			return "SEND_SCR"
		default:
			return "UNKNOWN"
		}
	}
	switch index {
	case 0:
		return "GO_IDLE_STATE"
	case 2:
		return "ALL_SEND_CID"
	case 3:
		return "SEND_RELATIVE_ADDR"
	case 4:
		return "SET_DSR"
	case 6:
		return "SWITCH_FUNC"
	case 7:
		return "SELECT_DESELECT_CARD"
	case 8:
		return "SEND_IF_COND"
	case 9:
		return "SEND_CSD"
	case 10:
		return "SEND_CID"
	case 12:
		return "STOP_TRANSMISSION"
	case 13:
		return "SEND_STATUS"
	case 16:
		return "SET_BLOCKLEN"
	case 17:
		return "READ_SINGLE_BLOCK"
	case 18:
		return "READ_MULTIPLE_BLOCK"
	case 24:
		return "WRITE_BLOCK"
	case 25:
		return "WRITE_MULTIPLE_BLOCK"
	case 32:
		return "ERASE_WR_BLK_START"
	case 33:
		return "ERASE_WR_BLK_END"
	case 38:
		return "ERASE"
	case 55:
		return "APP_CMD"
	case 56:
		return "GEN_CMD"
	default:
		return "UNKNOWN"
	}
}
