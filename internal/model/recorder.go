package model

// TxRecorder is notified of every frame a transmitter managed to send.
type TxRecorder interface {
	RecordTx(class uint8, bytes int)
}
