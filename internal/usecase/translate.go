package usecase

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"net/url"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/ports"
)

// DefaultUsageLocation applies to created users when neither the plan nor configuration sets one
const DefaultUsageLocation = "FR"

// DefaultDirectoryObjectBase prefixes the @odata.id of group member references
const DefaultDirectoryObjectBase = "https://graph.microsoft.com/v1.0"

type passwordProfileBody struct {
	Password                      string `json:"password"`
	ForceChangePasswordNextSignIn bool   `json:"forceChangePasswordNextSignIn"`
}

type createUserBody struct {
	AccountEnabled    bool                `json:"accountEnabled"`
	DisplayName       string              `json:"displayName"`
	MailNickname      string              `json:"mailNickname"`
	UserPrincipalName string              `json:"userPrincipalName"`
	JobTitle          string              `json:"jobTitle,omitempty"`
	Department        string              `json:"department,omitempty"`
	UsageLocation     string              `json:"usageLocation"`
	PasswordProfile   passwordProfileBody `json:"passwordProfile"`
}

type memberRefBody struct {
	ODataID string `json:"@odata.id"`
}

type licenseBody struct {
	SkuID string `json:"skuId"`
}

type assignLicenseBody struct {
	AddLicenses    []licenseBody `json:"addLicenses"`
	RemoveLicenses []string      `json:"removeLicenses"`
}

type accountEnabledBody struct {
	AccountEnabled bool `json:"accountEnabled"`
}

// Translation is a step converted into a directory call
type Translation struct {
	Request ports.ActuationRequest
	// GeneratedPassword is set when the plan did not supply a password
	GeneratedPassword bool
}

// Translator converts plan steps into normalized directory calls
type Translator struct {
	usageLocation string
	objectBase    string
	passwords     func() (string, error)
}

// NewTranslator creates a translator; empty arguments select the defaults
func NewTranslator(usageLocation, objectBase string) *Translator {
	if usageLocation == "" {
		usageLocation = DefaultUsageLocation
	}
	if objectBase == "" {
		objectBase = DefaultDirectoryObjectBase
	}
	return &Translator{
		usageLocation: usageLocation,
		objectBase:    objectBase,
		passwords:     generateTemporaryPassword,
	}
}

// Translate builds the directory call for one step. Unknown tools are an error.
func (t *Translator) Translate(step domain.Step) (*Translation, error) {
	action, err := step.Action()
	if err != nil {
		return nil, err
	}

	switch a := action.(type) {
	case *domain.CreateUserInput:
		return t.createUser(a)
	case *domain.AddGroupMemberInput:
		return &Translation{Request: ports.ActuationRequest{
			Method: http.MethodPost,
			Path:   "/groups/" + url.PathEscape(a.Group) + "/members/$ref",
			Body:   memberRefBody{ODataID: t.objectBase + "/users/" + a.UserPrincipalName},
		}}, nil
	case *domain.AssignLicenseInput:
		licenses := make([]licenseBody, 0, len(a.Skus))
		for _, sku := range a.Skus {
			licenses = append(licenses, licenseBody{SkuID: sku})
		}
		return &Translation{Request: ports.ActuationRequest{
			Method: http.MethodPost,
			Path:   "/users/" + url.PathEscape(a.UserPrincipalName) + "/assignLicense",
			Body:   assignLicenseBody{AddLicenses: licenses, RemoveLicenses: []string{}},
		}}, nil
	case *domain.DisableUserInput:
		return &Translation{Request: ports.ActuationRequest{
			Method: http.MethodPatch,
			Path:   "/users/" + url.PathEscape(a.UserPrincipalName),
			Body:   accountEnabledBody{AccountEnabled: false},
		}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTool, step.Tool)
	}
}

func (t *Translator) createUser(in *domain.CreateUserInput) (*Translation, error) {
	body := createUserBody{
		AccountEnabled:    true,
		DisplayName:       in.DisplayName,
		MailNickname:      in.MailNickname,
		UserPrincipalName: in.UserPrincipalName,
		JobTitle:          in.JobTitle,
		Department:        in.Department,
		UsageLocation:     in.UsageLocation,
		PasswordProfile:   passwordProfileBody{ForceChangePasswordNextSignIn: true},
	}
	if body.MailNickname == "" {
		body.MailNickname = in.LocalPart()
	}
	if body.UsageLocation == "" {
		body.UsageLocation = t.usageLocation
	}

	generated := false
	if in.PasswordProfile != nil {
		body.PasswordProfile.Password = in.PasswordProfile.Password
		if in.PasswordProfile.ForceChangePasswordNextSignIn != nil {
			body.PasswordProfile.ForceChangePasswordNextSignIn = *in.PasswordProfile.ForceChangePasswordNextSignIn
		}
	}
	if body.PasswordProfile.Password == "" {
		password, err := t.passwords()
		if err != nil {
			return nil, fmt.Errorf("failed to generate temporary password: %w", err)
		}
		body.PasswordProfile.Password = password
		body.PasswordProfile.ForceChangePasswordNextSignIn = true
		generated = true
	}

	return &Translation{
		Request: ports.ActuationRequest{
			Method: http.MethodPost,
			Path:   "/users",
			Body:   body,
		},
		GeneratedPassword: generated,
	}, nil
}

const (
	passwordLength = 20
	lowerChars     = "abcdefghijkmnopqrstuvwxyz"
	upperChars     = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars     = "23456789"
	symbolChars    = "!@#$%^&*-_=+?"
)

// generateTemporaryPassword returns a random password with every character class present
func generateTemporaryPassword() (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	all := lowerChars + upperChars + digitChars + symbolChars

	buf := make([]byte, passwordLength)
	for i := range buf {
		set := all
		if i < len(classes) {
			set = classes[i]
		}
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}

	// shuffle so the class-guaranteed characters are not always first
	for i := len(buf) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		buf[i], buf[j.Int64()] = buf[j.Int64()], buf[i]
	}
	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
