// Package services defines the shared error taxonomy for external
// collaborators (presign service, upload transport) and the classification
// helpers the scheduler uses to decide between retry and intervention.
package services
