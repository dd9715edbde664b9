package auth_test

import (
	"context"
	"errors"
	"testing"

	auth "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func createAna(t *testing.T, users auth.Users) *auth.User {
	t.Helper()
	in := anaInput()
	user, err := users.Create(context.Background(), &auth.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Age:      in.Age,
	})
	require.NoError(t, err)
	return user
}

func TestUsers_CreateHashesPassword(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()

	input := &auth.User{Name: "  Ana ", Email: " Ana@Example.COM ", Password: "red12345!"}
	user, err := users.Create(ctx, input)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Empty(t, user.Password)
	assert.NotEqual(t, "red12345!", user.PasswordHash)
	assert.NoError(t, auth.ComparePasswordAndHash("red12345!", user.PasswordHash))
	assert.Empty(t, user.Tokens)

	assert.Equal(t, "red12345!", input.Password, "caller record is not modified")

	found, err := users.FindByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, user.PasswordHash, found.PasswordHash)
}

func TestUsers_CreateDuplicateEmail(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()

	original := createAna(t, users)

	_, err := users.Create(ctx, &auth.User{Name: "Other", Email: "ANA@example.com", Password: "blue12345"})
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	assert.Equal(t, "that email is already registered", auth.FieldErrorsFrom(err)["email"])

	found, err := users.FindByEmail(ctx, original.Email)
	require.NoError(t, err)
	assert.Equal(t, "Ana", found.Name)
	assert.NoError(t, auth.ComparePasswordAndHash("red12345!", found.PasswordHash))
}

func TestUsers_CreateValidation(t *testing.T) {
	users := newTestRepo(t).Users()

	_, err := users.Create(context.Background(), &auth.User{Name: "Ana", Email: "not-an-email", Password: "abc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrValidation)

	fields := auth.FieldErrorsFrom(err)
	assert.Equal(t, "Please enter a valid email", fields["email"])
	assert.Equal(t, "Minimum password length is 7 characters", fields["password"])
}

func TestUsers_FindNotFound(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()

	_, err := users.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = users.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUsers_SaveKeepsHashWhenPasswordUnchanged(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()
	ana := createAna(t, users)

	loaded, err := users.FindByID(ctx, ana.ID)
	require.NoError(t, err)
	hash := loaded.PasswordHash

	loaded.Name = "Ana Maria"
	saved, err := users.Save(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, hash, saved.PasswordHash)
	assert.Equal(t, loaded.Revision+1, saved.Revision)

	again, err := users.Save(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, hash, again.PasswordHash)

	found, err := users.FindByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", found.Name)
	assert.NoError(t, auth.ComparePasswordAndHash("red12345!", found.PasswordHash))
}

func TestUsers_SaveRehashesNewPassword(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()
	ana := createAna(t, users)

	ana.Password = "blue12345"
	saved, err := users.Save(ctx, ana)
	require.NoError(t, err)
	assert.Empty(t, saved.Password)

	found, err := users.FindByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.NoError(t, auth.ComparePasswordAndHash("blue12345", found.PasswordHash))
	assert.ErrorIs(t, auth.ComparePasswordAndHash("red12345!", found.PasswordHash), auth.ErrMismatchedHashAndPassword)
}

func TestUsers_SaveRevisionConflict(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()
	ana := createAna(t, users)

	first, err := users.FindByID(ctx, ana.ID)
	require.NoError(t, err)
	second, err := users.FindByID(ctx, ana.ID)
	require.NoError(t, err)

	first.Name = "First"
	_, err = users.Save(ctx, first)
	require.NoError(t, err)

	second.Name = "Second"
	_, err = users.Save(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrRevisionConflict)
	assert.Equal(t, 409, auth.HTTPStatus(err))

	found, err := users.FindByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", found.Name)
}

func TestUsers_SaveMissingUser(t *testing.T) {
	users := newTestRepo(t).Users()

	_, err := users.Save(context.Background(), &auth.User{
		ID:           uuid.New(),
		Name:         "Ghost",
		Email:        "ghost@example.com",
		PasswordHash: "x",
	})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUsers_TokensKeepLoginOrder(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()
	ana := createAna(t, users)

	for _, token := range []string{"t1", "t2", "t3"} {
		require.NoError(t, users.AppendToken(ctx, ana.ID, token))
	}

	found, err := users.FindByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, found.TokenStrings())

	ok, err := users.HasToken(ctx, ana.ID, "t2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUsers_RemoveTokenRemovesEveryCopy(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()
	ana := createAna(t, users)

	require.NoError(t, users.AppendToken(ctx, ana.ID, "dup"))
	require.NoError(t, users.AppendToken(ctx, ana.ID, "keep"))
	require.NoError(t, users.AppendToken(ctx, ana.ID, "dup"))

	n, err := users.RemoveToken(ctx, ana.ID, "dup")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	found, err := users.FindByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, found.TokenStrings())

	n, err = users.RemoveAllTokens(ctx, ana.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUsers_AppendTokenUnknownUser(t *testing.T) {
	users := newTestRepo(t).Users()

	err := users.AppendToken(context.Background(), uuid.New(), "t1")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUsers_DeleteRemovesUserAndTokens(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()
	ana := createAna(t, users)
	require.NoError(t, users.AppendToken(ctx, ana.ID, "t1"))

	require.NoError(t, users.Delete(ctx, ana))

	_, err := users.FindByID(ctx, ana.ID)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	ok, err := users.HasToken(ctx, ana.ID, "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, users.Delete(ctx, ana), auth.ErrUserNotFound)
}

func TestUsers_Avatar(t *testing.T) {
	users := newTestRepo(t).Users()
	ctx := context.Background()
	ana := createAna(t, users)

	_, err := users.GetAvatar(ctx, ana.ID)
	assert.ErrorIs(t, err, auth.ErrAvatarNotFound)

	require.NoError(t, users.SetAvatar(ctx, ana.ID, []byte("png-bytes")))

	data, err := users.GetAvatar(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	found, err := users.FindByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Empty(t, found.Avatar, "lookups do not load avatar bytes")

	require.NoError(t, users.ClearAvatar(ctx, ana.ID))
	_, err = users.GetAvatar(ctx, ana.ID)
	assert.ErrorIs(t, err, auth.ErrAvatarNotFound)

	_, err = users.FindByID(ctx, ana.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, users.SetAvatar(ctx, uuid.New(), []byte("x")), auth.ErrUserNotFound)
	_, err = users.GetAvatar(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUsers_HashIDGenerator(t *testing.T) {
	users := newTestRepo(t, auth.WithUsersIDGenerator(auth.HashIDGenerator)).Users()

	ana := createAna(t, users)
	assert.Equal(t, auth.HashIDGenerator("ana@example.com"), ana.ID)
}

func TestUsers_HashIDAfterEmailChange(t *testing.T) {
	users := newTestRepo(t, auth.WithUsersIDGenerator(auth.HashIDGenerator)).Users()
	ctx := context.Background()

	first, err := users.Create(ctx, &auth.User{Name: "First", Email: "a@x.com", Password: "red12345!"})
	require.NoError(t, err)

	first.Email = "b@x.com"
	_, err = users.Save(ctx, first)
	require.NoError(t, err)

	second, err := users.Create(ctx, &auth.User{Name: "Second", Email: "a@x.com", Password: "blue12345"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	moved, err := users.FindByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, moved.ID)

	_, err = users.Create(ctx, &auth.User{Name: "Third", Email: "b@x.com", Password: "green1234"})
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestRepositoryManager_RunInTxRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	errAbort := errors.New("abort")
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := repo.Users().CreateTx(ctx, tx, &auth.User{
			Name:     "Ana",
			Email:    "ana@example.com",
			Password: "red12345!",
		})
		require.NoError(t, err)
		require.NoError(t, repo.Users().AppendTokenTx(ctx, tx, user.ID, "t1"))

		found, err := repo.Users().FindByEmailTx(ctx, tx, "ana@example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"t1"}, found.TokenStrings())

		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	_, err = repo.Users().FindByEmail(ctx, "ana@example.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
