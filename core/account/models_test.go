package account

import "testing"

func TestAccount_passwords(t *testing.T) {
	var acct Account
	if err := acct.SetPassword("s3cret"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	if err := acct.CheckPassword("s3cret"); err != nil {
		t.Errorf("CheckPassword() rejected the right password: %v", err)
	}
	if err := acct.CheckPassword("nope"); err == nil {
		t.Error("CheckPassword() accepted a wrong password")
	}

	// re-hashing invalidates the old password
	oldHash := acct.PasswordHash
	if err := acct.SetPassword("newpwd"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	if string(oldHash) == string(acct.PasswordHash) {
		t.Error("SetPassword() did not refresh the hash")
	}
	if err := acct.CheckPassword("s3cret"); err == nil {
		t.Error("CheckPassword() accepted the replaced password")
	}
}

func TestAccount_roles(t *testing.T) {
	admin := Account{Role: RoleAdmin}
	staff := Account{Role: RoleStaff}
	guardian := Account{Role: RoleGuardian}

	if !admin.IsAdmin() || admin.IsStaff() || admin.IsGuardian() {
		t.Errorf("unexpected role checks for %q", admin.Role)
	}
	if !staff.IsStaff() || staff.IsAdmin() {
		t.Errorf("unexpected role checks for %q", staff.Role)
	}
	if !guardian.IsGuardian() || guardian.IsAdmin() {
		t.Errorf("unexpected role checks for %q", guardian.Role)
	}
}
