package student

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "CSC/2021/001", Normalize("  csc/2021/001 "))
	assert.Equal(t, "ENG/2020/042", Normalize("ENG/2020/042"))
}

func TestFindByMatricNormalizesInput(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	level := 200
	mock.ExpectQuery(`FROM students WHERE matric_no = \$1`).
		WithArgs("CSC/2021/001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "matric_no", "full_name", "level"}).
			AddRow("stud-1", "CSC/2021/001", "Ada Obi", level))

	st, err := NewStore(db).FindByMatric(context.Background(), " csc/2021/001 ")
	require.NoError(t, err)
	assert.Equal(t, "stud-1", st.ID)
	require.NotNil(t, st.Level)
	assert.Equal(t, 200, *st.Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByMatricNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM students WHERE matric_no = \$1`).
		WithArgs("NOPE/0000/000").
		WillReturnRows(sqlmock.NewRows([]string{"id", "matric_no", "full_name", "level"}))

	_, err = NewStore(db).FindByMatric(context.Background(), "NOPE/0000/000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByIDNullLevel(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM students WHERE id = \$1`).
		WithArgs("stud-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "matric_no", "full_name", "level"}).
			AddRow("stud-2", "ENG/2020/042", "Bola Ade", nil))

	st, err := NewStore(db).FindByID(context.Background(), "stud-2")
	require.NoError(t, err)
	assert.Nil(t, st.Level)
}

func TestUpdateLevel(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE students SET level = \$2 WHERE id = \$1`).
		WithArgs("stud-1", 300).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewStore(db).UpdateLevel(context.Background(), "stud-1", 300))
	assert.NoError(t, mock.ExpectationsWereMet())
}
