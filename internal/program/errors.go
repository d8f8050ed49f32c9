package program

import (
	"encoding/json"
	"fmt"
)

// customErrorBase is where Anchor numbers program-defined errors.
const customErrorBase = 6000

// ProgramError is one entry of the program's error table.
type ProgramError struct {
	Code    uint32
	Name    string
	Message string
}

func (e ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

var tradeErrors = []ProgramError{
	{Name: "InvalidAmount", Message: "Amount must be greater than zero."},
	{Name: "UnexpectedState", Message: "Your funds are not locked yet, perhaps not deposited"},
	{Name: "InvalidStateTransition", Message: "Documents properly submitted, can't cancel trade now"},
	{Name: "VaultBalanceMismatch", Message: "Trade balance empty"},
	{Name: "InvalidState", Message: "Cannot submit docs on no or empty trade"},
	{Name: "UnexpectedStateTransition", Message: "Documents already submitted"},
	{Name: "UnreadyState", Message: "Documents have not been submitted"},
	{Name: "VaultMismatch", Message: "Vault balance does not match escrow amount"},
	{Name: "MissingDocuments", Message: "No documents submitted"},
}

// frameworkErrors are raised by the Anchor runtime before or around the
// program's own handlers (dispatch, account constraints, deserialization).
var frameworkErrors = map[uint32]ProgramError{
	100: {Name: "InstructionMissing", Message: "8 byte instruction identifier not provided"},
	101: {Name: "InstructionFallbackNotFound", Message: "Fallback functions are not supported"},
	102: {Name: "InstructionDidNotDeserialize", Message: "The program could not deserialize the given instruction"},
	103: {Name: "InstructionDidNotSerialize", Message: "The program could not serialize the given instruction"},

	1000: {Name: "IdlInstructionStub", Message: "The program was compiled without idl instructions"},
	1001: {Name: "IdlInstructionInvalidProgram", Message: "Invalid program given to the IDL instruction"},
	1002: {Name: "IdlAccountNotEmpty", Message: "IDL account must be empty in order to resize, try closing first"},
	1500: {Name: "EventInstructionStub", Message: "The program was compiled without `event-cpi` feature"},

	2000: {Name: "ConstraintMut", Message: "A mut constraint was violated"},
	2001: {Name: "ConstraintHasOne", Message: "A has one constraint was violated"},
	2002: {Name: "ConstraintSigner", Message: "A signer constraint was violated"},
	2003: {Name: "ConstraintRaw", Message: "A raw constraint was violated"},
	2004: {Name: "ConstraintOwner", Message: "An owner constraint was violated"},
	2005: {Name: "ConstraintRentExempt", Message: "A rent exemption constraint was violated"},
	2006: {Name: "ConstraintSeeds", Message: "A seeds constraint was violated"},
	2007: {Name: "ConstraintExecutable", Message: "An executable constraint was violated"},
	2008: {Name: "ConstraintState", Message: "Deprecated Error, feel free to replace with something else"},
	2009: {Name: "ConstraintAssociated", Message: "An associated constraint was violated"},
	2010: {Name: "ConstraintAssociatedInit", Message: "An associated init constraint was violated"},
	2011: {Name: "ConstraintClose", Message: "A close constraint was violated"},
	2012: {Name: "ConstraintAddress", Message: "An address constraint was violated"},
	2013: {Name: "ConstraintZero", Message: "Expected zero account discriminant"},
	2014: {Name: "ConstraintTokenMint", Message: "A token mint constraint was violated"},
	2015: {Name: "ConstraintTokenOwner", Message: "A token owner constraint was violated"},
	2016: {Name: "ConstraintMintMintAuthority", Message: "A mint mint authority constraint was violated"},
	2017: {Name: "ConstraintMintFreezeAuthority", Message: "A mint freeze authority constraint was violated"},
	2018: {Name: "ConstraintMintDecimals", Message: "A mint decimals constraint was violated"},
	2019: {Name: "ConstraintSpace", Message: "A space constraint was violated"},
	2020: {Name: "ConstraintAccountIsNone", Message: "A required account for the constraint is None"},
	2021: {Name: "ConstraintTokenTokenProgram", Message: "A token account token program constraint was violated"},
	2022: {Name: "ConstraintMintTokenProgram", Message: "A mint token program constraint was violated"},
	2023: {Name: "ConstraintAssociatedTokenTokenProgram", Message: "An associated token account token program constraint was violated"},

	2500: {Name: "RequireViolated", Message: "A require expression was violated"},
	2501: {Name: "RequireEqViolated", Message: "A require_eq expression was violated"},
	2502: {Name: "RequireKeysEqViolated", Message: "A require_keys_eq expression was violated"},
	2503: {Name: "RequireNeqViolated", Message: "A require_neq expression was violated"},
	2504: {Name: "RequireKeysNeqViolated", Message: "A require_keys_neq expression was violated"},
	2505: {Name: "RequireGtViolated", Message: "A require_gt expression was violated"},
	2506: {Name: "RequireGteViolated", Message: "A require_gte expression was violated"},

	3000: {Name: "AccountDiscriminatorAlreadySet", Message: "The account discriminator was already set on this account"},
	3001: {Name: "AccountDiscriminatorNotFound", Message: "No 8 byte discriminator was found on the account"},
	3002: {Name: "AccountDiscriminatorMismatch", Message: "8 byte discriminator did not match what was expected"},
	3003: {Name: "AccountDidNotDeserialize", Message: "Failed to deserialize the account"},
	3004: {Name: "AccountDidNotSerialize", Message: "Failed to serialize the account"},
	3005: {Name: "AccountNotEnoughKeys", Message: "Not enough account keys given to the instruction"},
	3006: {Name: "AccountNotMutable", Message: "The given account is not mutable"},
	3007: {Name: "AccountOwnedByWrongProgram", Message: "The given account is owned by a different program than expected"},
	3008: {Name: "InvalidProgramId", Message: "Program ID was not as expected"},
	3009: {Name: "InvalidProgramExecutable", Message: "Program account is not executable"},
	3010: {Name: "AccountNotSigner", Message: "The given account did not sign"},
	3011: {Name: "AccountNotSystemOwned", Message: "The given account is not owned by the system program"},
	3012: {Name: "AccountNotInitialized", Message: "The program expected this account to be already initialized"},
	3013: {Name: "AccountNotProgramData", Message: "The given account is not a program data account"},
	3014: {Name: "AccountNotAssociatedTokenAccount", Message: "The given account is not the associated token account"},
	3015: {Name: "AccountSysvarMismatch", Message: "The given public key does not match the required sysvar"},
	3016: {Name: "AccountReallocExceedsLimit", Message: "The account reallocation exceeds the MAX_PERMITTED_DATA_INCREASE limit"},
	3017: {Name: "AccountDuplicateReallocs", Message: "The account was duplicated for more than one reallocation"},

	4100: {Name: "DeclaredProgramIdMismatch", Message: "The declared program id does not match the actual program id"},
	4101: {Name: "TryingToInitPayerAsProgramAccount", Message: "You cannot/should not initialize the payer account as a program account"},
	4102: {Name: "InvalidNumericConversion", Message: "The program could not perform the numeric conversion, out of range integral type conversion attempted"},
	5000: {Name: "Deprecated", Message: "The API being used is deprecated and should no longer be used"},
}

func init() {
	for i := range tradeErrors {
		tradeErrors[i].Code = customErrorBase + uint32(i)
	}
	for code, e := range frameworkErrors {
		e.Code = code
		frameworkErrors[code] = e
	}
}

// LookupError returns the table entry for a custom error code: the
// program's own errors from 6000, Anchor's framework errors below that.
func LookupError(code uint32) (ProgramError, bool) {
	if code >= customErrorBase {
		if code >= customErrorBase+uint32(len(tradeErrors)) {
			return ProgramError{}, false
		}
		return tradeErrors[code-customErrorBase], true
	}
	e, ok := frameworkErrors[code]
	return e, ok
}

// CustomCode extracts the custom error number from a failure diagnostic of
// the form {"InstructionError":[idx,{"Custom":n}]}.
func CustomCode(diagnostic string) (uint32, bool) {
	var v struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if err := json.Unmarshal([]byte(diagnostic), &v); err != nil || len(v.InstructionError) != 2 {
		return 0, false
	}
	var custom struct {
		Custom *uint32 `json:"Custom"`
	}
	if err := json.Unmarshal(v.InstructionError[1], &custom); err != nil || custom.Custom == nil {
		return 0, false
	}
	return *custom.Custom, true
}

// ErrorFromDiagnostic resolves a failure diagnostic to the program error it
// names, if any.
func ErrorFromDiagnostic(diagnostic string) (ProgramError, bool) {
	code, ok := CustomCode(diagnostic)
	if !ok {
		return ProgramError{}, false
	}
	return LookupError(code)
}
