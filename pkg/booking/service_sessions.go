package booking

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptPrefix = "$2"

// Login verifies credentials and issues a fresh session token, replacing any previous one.
// Unknown usernames and wrong passwords both return ErrInvalidCredentials.
func (service *Service) Login(ctx context.Context, username string, password string) (SessionToken, error) {
	var token SessionToken
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAdminByUsername(ctx, username)
		if errors.Is(err, ErrAdminNotFound) {
			return ErrInvalidCredentials
		}
		if err != nil {
			return err
		}
		matched, legacy := verifyPassword(account.Password, password)
		if !matched {
			return ErrInvalidCredentials
		}
		if legacy {
			upgradedHash, err := service.hashPassword(password)
			if err != nil {
				return err
			}
			if err := transactionStore.SetAdminPassword(ctx, account.ID, upgradedHash); err != nil {
				return err
			}
		}
		issued, err := service.newSessionToken()
		if err != nil {
			return err
		}
		if err := transactionStore.SetAdminToken(ctx, account.ID, issued); err != nil {
			return err
		}
		token = issued
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationLogin,
		Username:  username,
		Error:     operationError,
	})
	if operationError != nil {
		return SessionToken{}, operationError
	}
	return token, nil
}

// Logout clears the session of every administrator.
func (service *Service) Logout(ctx context.Context) error {
	operationError := service.store.ClearAdminTokens(ctx)
	service.logOperation(ctx, OperationLog{
		Operation: operationLogout,
		Error:     operationError,
	})
	return operationError
}

// Authenticate resolves a presented bearer token. An empty token is ErrMissingCredential,
// an unknown one ErrInvalidSession.
func (service *Service) Authenticate(ctx context.Context, rawToken string) (AdminAccount, error) {
	token, err := NewSessionToken(rawToken)
	if err != nil {
		return AdminAccount{}, err
	}
	account, err := service.store.GetAdminByToken(ctx, token)
	if errors.Is(err, ErrAdminNotFound) {
		return AdminAccount{}, ErrInvalidSession
	}
	if err != nil {
		return AdminAccount{}, err
	}
	account.Password = ""
	return account, nil
}

// ChangePassword re-verifies the current password of an authenticated administrator and
// stores the new one. The current session stays valid.
func (service *Service) ChangePassword(ctx context.Context, account AdminAccount, currentPassword string, newPassword string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if newPassword == "" {
			return fmt.Errorf("%w: new password is empty", ErrInvalidPassword)
		}
		stored, err := transactionStore.GetAdminByUsername(ctx, account.Username)
		if errors.Is(err, ErrAdminNotFound) {
			return ErrInvalidSession
		}
		if err != nil {
			return err
		}
		if matched, _ := verifyPassword(stored.Password, currentPassword); !matched {
			return fmt.Errorf("%w: current password is incorrect", ErrInvalidCredentials)
		}
		newHash, err := service.hashPassword(newPassword)
		if err != nil {
			return err
		}
		return transactionStore.SetAdminPassword(ctx, stored.ID, newHash)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationChangePassword,
		Username:  account.Username,
		Error:     operationError,
	})
	return operationError
}

// ResetPassword overwrites an administrator password without verifying the old one.
// It is meant for operators with direct database access.
func (service *Service) ResetPassword(ctx context.Context, username string, newPassword string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if newPassword == "" {
			return fmt.Errorf("%w: new password is empty", ErrInvalidPassword)
		}
		stored, err := transactionStore.GetAdminByUsername(ctx, username)
		if err != nil {
			return err
		}
		newHash, err := service.hashPassword(newPassword)
		if err != nil {
			return err
		}
		return transactionStore.SetAdminPassword(ctx, stored.ID, newHash)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationChangePassword,
		Username:  username,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) newSessionToken() (SessionToken, error) {
	buffer := make([]byte, sessionTokenBytes)
	if _, err := io.ReadFull(service.tokenSource, buffer); err != nil {
		return SessionToken{}, WrapError("service", "session", "entropy", err)
	}
	return SessionToken{value: hex.EncodeToString(buffer)}, nil
}

func (service *Service) hashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), service.passwordCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	return string(hash), nil
}

// verifyPassword compares a candidate against the stored value. Rows written before
// hashing was introduced hold plaintext; those match by constant-time comparison and
// are reported as legacy so the caller can upgrade them.
func verifyPassword(stored string, candidate string) (matched bool, legacy bool) {
	if strings.HasPrefix(stored, bcryptPrefix) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil, false
	}
	if stored == "" {
		return false, false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1, true
}
