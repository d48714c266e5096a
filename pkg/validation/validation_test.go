package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/sheetboard/pkg/dasherr"
	"github.com/vinodismyname/sheetboard/pkg/pagination"
)

type openInput struct {
	Path string `validate:"omitempty,filepath_ext"`
}

type chartInput struct {
	Sheet string `validate:"omitempty,sheetname"`
	Mode  string `validate:"omitempty,agg_mode"`
	Limit int    `validate:"omitempty,min=1,max=500"`
}

type pageInput struct {
	Cursor string `validate:"omitempty,cursor"`
}

func TestCheck_Rules(t *testing.T) {
	require.NoError(t, Check(openInput{Path: "Gestao.XLSX"}))
	require.NoError(t, Check(chartInput{Sheet: "UCs", Mode: "Média", Limit: 10}))

	err := Check(openInput{Path: "notes.csv"})
	require.Error(t, err)
	require.Equal(t, dasherr.Validation, dasherr.CodeOf(err))
	require.Contains(t, err.Error(), "Excel file")

	require.Error(t, Check(chartInput{Sheet: "a/b"}))
	require.Error(t, Check(chartInput{Mode: "median"}))
	require.Equal(t, "VALIDATION: limit must satisfy max=500", ValidateStruct(chartInput{Limit: 501}))
}

func TestCheck_Cursor(t *testing.T) {
	tok, err := pagination.EncodeCursor(pagination.Cursor{Sid: "s", S: "UCs", Ps: 10})
	require.NoError(t, err)
	require.NoError(t, Check(pageInput{Cursor: tok}))

	err = Check(pageInput{Cursor: "garbage!"})
	require.Equal(t, dasherr.CursorInvalid, dasherr.CodeOf(err))
}
