package messages

import (
	"fmt"
	"strings"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

// Truncate cuts s to n runes, adding "..." when something was cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func ErrorDefault() string {
	return "🚫 <b>Error</b>\nAn error occurred while processing your request. Please try again later."
}

// Worker

func DownloadStarting(url string) string {
	return "🚀 <b>Your download is starting now!</b>\n\nURL: " + Escape(url)
}

func ResourceDownloaded() string {
	return "✅ Resource downloaded successfully! Waiting 3-5 minutes for the license to become available..."
}

func LoginFailed() string {
	return "❌ Login failed. Unable to download your resource."
}

func CaptchaFailed() string {
	return "❌ Login failed: the site asked for a CAPTCHA that could not be solved.\n\nPlease try again later."
}

func AccessDenied() string {
	return "❌ <b>Access Denied:</b> You don't have permission to access this resource.\n\n" +
		"This might happen if:\n" +
		"- The resource requires a higher-tier premium account\n" +
		"- The resource has geographic restrictions\n" +
		"- The URL is incorrect or the resource was removed\n\n" +
		"Please try with a different resource URL."
}

func AccessDeniedSearched() string {
	return "⚠️ The direct link to this resource returned an 'Access Denied' error.\n\n" +
		"I've searched for similar resources based on keywords from your link. " +
		"Please try sending me a different URL for a similar resource."
}

func DownloadButtonNotFound() string {
	return "❌ Could not find a download button for this resource. This might happen if:\n\n" +
		"1. The resource requires a higher-tier premium account\n" +
		"2. The resource is not available for download\n" +
		"3. The website layout has changed"
}

func DownloadDidNotStart() string {
	return "❌ Found the download button but couldn't initiate the download. " +
		"The resource might not be available with the current account."
}

func LicenseDownloaded() string {
	return "✅ License download complete!"
}

func LicenseFailed() string {
	return "❌ Failed to download the license file."
}

func LicenseUploadFailed() string {
	return "⚠️ There was an issue sending the license file."
}

func UploadFailed() string {
	return "⚠️ There was an issue sending the files."
}

func NoFilesDownloaded() string {
	return "❌ No files were downloaded."
}

// JobCrashed reports an unexpected job failure with the error cut short.
func JobCrashed(err error) string {
	text := "unknown error"
	if err != nil {
		text = err.Error()
	}
	return "❌ An error occurred during your download: " + Escape(Truncate(text, 100)) +
		"\n\nPlease try again later."
}

// Delivery

func UploadingLarge(fileName string, sizeMB float64) string {
	return fmt.Sprintf("📤 Uploading %s (%.1f MB)...\nThis may take a few minutes.", Escape(fileName), sizeMB)
}

func UploadTimedOut() string {
	return "⚠️ The file upload timed out. The file might be too large for Telegram. " +
		"Try downloading again or try a different resource."
}

func CaptionResource() string {
	return "🎁 Here's your downloaded resource file!"
}

func CaptionLicense() string {
	return "📝 Here's your license file."
}

func LicenseOffer() string {
	return "Would you like me to download the license file as well?\n\n⚠️ Note: This may take a few minutes."
}
