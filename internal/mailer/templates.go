// Copyright 2025 Mats Karlsen
// Licensed under the EUPL-1.2

package mailer

import "fmt"

// OTPVerificationBody renders the verification email carrying the
// passcode.
func OTPVerificationBody(firstName, code string) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2 style="color: #4CAF50;">OTP Verification</h2>
  <p>Dear %s,</p>
  <p>Your One-Time Password (OTP) for verification is:</p>
  <h3 style="color: #FF5722;">%s</h3>
  <p>Please use this OTP to complete your verification process. This OTP is valid for 10 minutes.</p>
  <p>If you did not request this, please ignore this email.</p>
</div>`, firstName, code)
}

// PasswordChangedBody renders the confirmation sent after a password
// update.
func PasswordChangedBody(firstName string) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2 style="color: #4CAF50;">Password Changed Successfully</h2>
  <p>Dear %s,</p>
  <p>This is to inform you that your account password has been changed successfully.</p>
  <p>If you did not initiate this change, please contact our support team immediately.</p>
</div>`, firstName)
}
