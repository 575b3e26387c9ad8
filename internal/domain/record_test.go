package domain

import (
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Payment ")
	require.NoError(t, err)
	require.Equal(t, KindPayment, k)

	k, err = ParseKind("expense")
	require.NoError(t, err)
	require.Equal(t, KindExpense, k)

	_, err = ParseKind("refund")
	require.Error(t, err)
}

func TestRecord_Validate(t *testing.T) {
	date := civil.Date{Year: 2026, Month: 10, Day: 17}

	tests := []struct {
		name    string
		record  Record
		wantErr bool
	}{
		{
			name: "valid expense",
			record: Record{Kind: KindExpense, Date: date, Description: "cimento",
				Category: CategoryMaterials, Amount: decimal.NewFromInt(200)},
		},
		{
			name: "valid payment",
			record: Record{Kind: KindPayment, Date: date, WorkerName: "Pedro",
				Role: RoleMason, Amount: decimal.NewFromInt(350)},
		},
		{
			name: "expense with payment fields",
			record: Record{Kind: KindExpense, Date: date, Description: "cimento",
				Category: CategoryMaterials, WorkerName: "Pedro", Amount: decimal.NewFromInt(1)},
			wantErr: true,
		},
		{
			name: "payment without worker",
			record: Record{Kind: KindPayment, Date: date, Role: RoleMason,
				Amount: decimal.NewFromInt(1)},
			wantErr: true,
		},
		{
			name: "negative amount",
			record: Record{Kind: KindExpense, Date: date, Description: "areia",
				Category: CategoryOther, Amount: decimal.NewFromInt(-5)},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			record:  Record{Kind: "refund", Date: date, Amount: decimal.Zero},
			wantErr: true,
		},
		{
			name: "zero date",
			record: Record{Kind: KindExpense, Description: "areia",
				Category: CategoryOther, Amount: decimal.Zero},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	base := errors.New("boom")

	require.Equal(t, ErrExtraction, Classify(Wrap(ErrExtraction, base)))
	require.Equal(t, ErrAppend, Classify(fmt.Errorf("Append: %w", Wrap(ErrAppend, base))))
	require.Equal(t, ErrUnexpected, Classify(base))
	require.Nil(t, Classify(nil))
	require.Nil(t, Wrap(ErrAppend, nil))
}

func TestWrap_DeadlineBecomesTimeout(t *testing.T) {
	err := Wrap(ErrTranscription, fmt.Errorf("whisper: %w", contextDeadline()))
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, ErrTranscription)
	require.Equal(t, ErrTimeout, Classify(err))
}

func TestConfigError(t *testing.T) {
	err := ConfigError("%s is required", "TELEGRAM_BOT_TOKEN")
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}
